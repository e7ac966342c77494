package users

// Codes are the function codes the user screen works with.
type Codes struct {
	List   string
	Create string
	Delete string
}

// Control names reported alongside the listing.
const (
	ControlCreate = "createUser"
	ControlDelete = "deleteUser"
)
