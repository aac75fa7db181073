// internal/model/subscriber.go
package model

type SubscriberStatus string

const (
    Subscribed   SubscriberStatus = "subscribed"
    Unsubscribed SubscriberStatus = "unsubscribed"
)

type Subscriber struct {
    Email      string           `db:"email" json:"email"`
    Status     SubscriberStatus `db:"status" json:"status"`
    UnsubToken *string          `db:"unsub_token" json:"-"`
}
