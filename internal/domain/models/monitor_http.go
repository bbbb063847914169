package models

// Requests for the monitor HTTP endpoints. Path params bind through `param`,
// query params through `query`. Defaults apply only to params the client
// left out, so txs=0 asks for no recent transactions.

type TokenRequest struct {
	Token string `param:"token" json:"token" validate:"required"`
}

type SnapshotRequest struct {
	Token string `param:"token" json:"token" validate:"required"`
	Limit int    `query:"limit" json:"limit" default:"60" validate:"gte=1,lte=500"`
	Txs   int    `query:"txs" json:"txs" default:"100" validate:"gte=0,lte=1000"`
}

type HoldersRequest struct {
	Token string `param:"token" json:"token" validate:"required"`
	Limit int    `query:"limit" json:"limit" default:"60" validate:"gte=1,lte=500"`
}

type AggregateRequest struct {
	Token  string `param:"token" json:"token" validate:"required"`
	Window string `param:"window" json:"window" validate:"required"`
}

type ActivityRequest struct {
	Token  string `param:"token" json:"token" validate:"required"`
	Window string `query:"window" json:"window" default:"24h"`
	Bucket string `query:"bucket" json:"bucket" default:"1h"`
}

type HistoryRequest struct {
	Token string `param:"token" json:"token" validate:"required"`
	From  string `query:"from" json:"from" validate:"required"`
	To    string `query:"to" json:"to" validate:"required"`
}
