package models

import "time"

// EventTypeUserCreated is the event-type header value for UserCreatedEvent.
const EventTypeUserCreated = "user-created"

// UserCreatedEvent is published by the user API on user registration and is
// the payload the notification function expects.
type UserCreatedEvent struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Timestamp time.Time `json:"timestamp"`
}
