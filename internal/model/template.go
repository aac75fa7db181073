// internal/model/template.go
package model

import "time"

type EmailTemplate struct {
    ID        string    `db:"id" json:"id"`
    Subject   string    `db:"subject" json:"subject"`
    HTML      string    `db:"html" json:"html"`
    CreatedAt time.Time `db:"created_at" json:"created_at"`
}
