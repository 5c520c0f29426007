package model

// Client is identified by phone: two clients with the same phone are the same client.
type Client struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone"`
}
