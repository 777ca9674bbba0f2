package session

import "go.jetify.com/typeid"

// NewSessionID returns a new type-prefixed UUID for session identification
func NewSessionID() string {
	id, err := typeid.WithPrefix("sess")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewJobID returns a new type-prefixed UUID for queue job identification
func NewJobID() string {
	id, err := typeid.WithPrefix("job")
	if err != nil {
		panic(err)
	}
	return id.String()
}
