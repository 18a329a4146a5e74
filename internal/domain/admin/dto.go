package admin

// AdjustCreditsRequest is the body of POST /admin/users/{id}/credits
type AdjustCreditsRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0,lte=1000000"`
	Direction string `json:"direction" validate:"required,credit_direction"`
	Reason    string `json:"reason" validate:"required,min=3,max=500"`
}

// UpdatePaymentRequest is the body of PATCH /admin/payments/{id}
type UpdatePaymentRequest struct {
	Action string `json:"action" validate:"required"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ManualCreditRequest is the body of POST /admin/payments/manual-credit
type ManualCreditRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	PackID    string `json:"pack_id" validate:"required_without=Credits,omitempty,pack_id"`
	Credits   int64  `json:"credits" validate:"required_without=PackID,omitempty,gt=0,lte=1000000"`
	Reference string `json:"reference" validate:"required,max=128"`
	Reason    string `json:"reason" validate:"required,min=3,max=500"`
}

// ChangeRoleRequest is the body of PATCH /admin/users/{id}/role
type ChangeRoleRequest struct {
	Role   string `json:"role" validate:"required,user_role"`
	Reason string `json:"reason" validate:"max=500"`
}

// SuspensionRequest is the body of the suspend and unsuspend endpoints
type SuspensionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
