package client

import (
	"context"
)

// Account is the account summary returned by WhoAmI.
type Account struct {
	UserID          string
	Username        string
	Email           string
	Kind            string
	InstitutionID   string
	InstitutionName string
	CourseProgress  map[string]any
}

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	SignUp(ctx context.Context, username, email, password, kind string) (string, error)
	SignIn(ctx context.Context, identifier, password string) error
	CompleteMFA(ctx context.Context, code string) error
	SignOut(ctx context.Context) error
	WhoAmI(ctx context.Context) (*Account, error)
	SaveProgress(ctx context.Context, progress map[string]any) error
	JoinInstitution(ctx context.Context, joinCode string) (string, error)
	CheckIfPaidFor(ctx context.Context, courseID string) (bool, error)
	Token() string
	SetToken(token string)
}
