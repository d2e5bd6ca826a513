package credential

import "context"

// Source is the uniform way a pool reads credentials, letting the file-backed
// default be swapped for another origin (e.g. a remote secrets store) without
// touching the manager.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]*Credential, error)
}

// WritableSource additionally supports writing credentials back to the origin.
type WritableSource interface {
	Source
	Save(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, id string) error
}

// StatefulSource persists runtime health state (errorCount, isDisabled, ...)
// separately from the credential's static secrets.
type StatefulSource interface {
	Source
	RestoreState(ctx context.Context, cred *Credential) error
	PersistState(ctx context.Context, cred *Credential, state *CredentialState) error
	DeleteState(ctx context.Context, id string) error
}
