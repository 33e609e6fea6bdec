package models

import "time"

type Subscription struct {
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}
