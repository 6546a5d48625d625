package db

// schema is valid for both postgres and sqlite.
const schema = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_user_id ON customers(user_id);

CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    channel TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_campaigns_user_created ON campaigns(user_id, created_at);

CREATE TABLE IF NOT EXISTS delivery_logs (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id),
    delivery_status TEXT NOT NULL,
    error TEXT,
    sent_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_delivery_logs_campaign ON delivery_logs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_delivery_logs_sent_at ON delivery_logs(sent_at);
`

// postgresTriggers publish every insert on the watched tables with pg_notify.
// The channel name is the table name and the payload is the inserted row.
const postgresTriggers = `
CREATE OR REPLACE FUNCTION notify_row_inserted() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify(TG_TABLE_NAME, row_to_json(NEW)::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS campaigns_notify_insert ON campaigns;
CREATE TRIGGER campaigns_notify_insert AFTER INSERT ON campaigns
    FOR EACH ROW EXECUTE FUNCTION notify_row_inserted();

DROP TRIGGER IF EXISTS delivery_logs_notify_insert ON delivery_logs;
CREATE TRIGGER delivery_logs_notify_insert AFTER INSERT ON delivery_logs
    FOR EACH ROW EXECUTE FUNCTION notify_row_inserted();
`
