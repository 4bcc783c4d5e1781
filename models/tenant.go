package models

// Environment selects which event partition a tenant's queries target.
type Environment int

const (
	Production Environment = iota
	Test
)

func (e Environment) String() string {
	if e == Test {
		return "test"
	}
	return "production"
}

// Tenant is an application resolved from one of its API keys.
type Tenant struct {
	ID          string
	APIKey      string
	Environment Environment
}
