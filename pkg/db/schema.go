package db

// All prices and quantities are stored as decimal strings, never REAL.
// Keys are client order ids: the engine generates them before submission
// and the venue echoes them back on every execution report.
const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS order_contexts (
    order_id TEXT PRIMARY KEY,
    trade_id TEXT NOT NULL,
    edge TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_states (
    order_id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    order_type TEXT NOT NULL,
    status TEXT NOT NULL,
    executed_base TEXT NOT NULL DEFAULT '0',
    executed_quote TEXT NOT NULL DEFAULT '0',
    cancelled INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS positions (
    symbol TEXT PRIMARY KEY,
    edge TEXT NOT NULL,
    direction TEXT NOT NULL,
    base_qty TEXT NOT NULL,
    take_profit_order_id TEXT NOT NULL DEFAULT '',
    stop_order_id TEXT NOT NULL DEFAULT '',
    oco_list_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_order_contexts_created ON order_contexts(created_at);
CREATE INDEX IF NOT EXISTS idx_order_states_symbol ON order_states(symbol);
`
