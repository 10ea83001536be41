// Package ports declares the collaborators the sync core consumes.
package ports

// Authenticator provides the signed-in user. It returns
// models.ErrNotAuthenticated when nobody is signed in.
type Authenticator interface {
	CurrentUserID() (string, error)
}

// Connectivity reports network reachability.
type Connectivity interface {
	IsOnline() bool
}

// ConnectivityNotifier additionally emits online/offline transitions.
type ConnectivityNotifier interface {
	Connectivity
	Subscribe(fn func(online bool))
}
