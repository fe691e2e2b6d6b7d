package services

import "context"

// DocumentRef identifies a document produced by a DocumentCreator.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// RecordRef identifies a persisted domain record.
type RecordRef struct {
	Table   string `json:"table"`
	Key     string `json:"key"`
	Created bool   `json:"created"`
}

// MessageReceipt confirms delivery of an outbound message.
type MessageReceipt struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	To      string `json:"to,omitempty"`
}

// DocumentCreator produces documents from generated content. Used by the
// content-generator connector.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, title, body string) (DocumentRef, error)
}

// RecordPersister upserts domain records keyed by (table, key). Used by the
// record-upsert and database-write connectors.
type RecordPersister interface {
	UpsertRecord(ctx context.Context, table, key string, fields map[string]any) (RecordRef, error)
}

// Messenger delivers outbound messages and emails. Used by send-message and
// send-email actions when a real transport is wired in.
type Messenger interface {
	Send(ctx context.Context, channel, to, subject, body string) (MessageReceipt, error)
}

// Collaborators bundles the optional external services available to node
// executors. Any nil field means the corresponding connector synthesizes a
// mock result instead of calling out.
type Collaborators struct {
	Documents DocumentCreator
	Records   RecordPersister
	Messages  Messenger
}
