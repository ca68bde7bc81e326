package mesh

// StateStore persists the security context between runs.
type StateStore interface {
	Save(cfg NetworkConfig, replace bool) error
	Load() (NetworkConfig, error)
	Clear() error
}
