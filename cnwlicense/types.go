package cnwlicense

import (
	"github.com/golang-jwt/jwt/v5"
)

// ActivateRequest is the request body for the /activate endpoint.
type ActivateRequest struct {
	ProductKey string `json:"product_key" validate:"required"`
	MachineID  string `json:"machine_id" validate:"required"`
}

// ActivateResponse is the success body of the /activate endpoint.
// LicenseKey holds the signed credential.
type ActivateResponse struct {
	Status     string `json:"status"`
	LicenseKey string `json:"license_key"`
}

// Claims is the payload of an issued credential. Only machine_id,
// product_key and exp are set.
type Claims struct {
	MachineID  string `json:"machine_id"`
	ProductKey string `json:"product_key"`
	jwt.RegisteredClaims
}

// ActivateResult is returned by Service.Activate.
type ActivateResult struct {
	Credential string
	Claims     *Claims
	// Created reports whether this call consumed a new activation slot.
	Created bool
}
