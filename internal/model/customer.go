// internal/model/customer.go
package model

import "time"

type Customer struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Address returns the contact field used for the given channel.
func (c *Customer) Address(ch Channel) string {
	switch ch {
	case ChannelSMS, ChannelWhatsApp:
		return c.Phone
	default:
		return c.Email
	}
}
