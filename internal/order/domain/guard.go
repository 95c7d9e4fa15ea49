package domain

// Allow is the cancellation policy. Owners may cancel until the order ships,
// admins until it is delivered, nobody afterwards.
func Allow(status Status, role Role) bool {
	switch status {
	case StatusCreated, StatusProcessing:
		return role == RoleOwner || role == RoleAdmin
	case StatusShipping:
		return role == RoleAdmin
	default:
		return false
	}
}
