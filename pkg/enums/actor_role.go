package enums

import "fmt"

// ActorRole identifies who performed an action against a resource.
type ActorRole string

const (
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleClient ActorRole = "client"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleClient,
}

func (a ActorRole) String() string {
	return string(a)
}

func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
