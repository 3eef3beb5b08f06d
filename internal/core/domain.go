package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

type (
	Role string

	// Record is a cash-register entry ("encaissement") as served by the salon API.
	Record struct {
		ID       int64           `json:"id" validate:"required"`
		Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
		Time     string          `json:"time" validate:"required,datetime=15:04:05"`
		Service  *int64          `json:"service"`
		Employee *int64          `json:"employee"`
		Amount   decimal.Decimal `json:"amount"`
	}

	Service struct {
		ID       int64               `json:"id" validate:"required"`
		Name     string              `json:"name"`
		Duration string              `json:"duration,omitempty"`
		Price    decimal.NullDecimal `json:"price"`
	}

	Employee struct {
		ID        int64  `json:"id" validate:"required"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	Client struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	// Dataset is one consistent fetch of the three ledger collections.
	Dataset struct {
		Records   []Record   `json:"records"`
		Services  []Service  `json:"services"`
		Employees []Employee `json:"employees"`
		FetchedAt time.Time  `json:"fetched_at"`
		// Stale is set when the dataset comes from a local snapshot
		// instead of a live fetch.
		Stale bool `json:"-"`
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidRole     = errors.New("invalid role")
)

// IsStaff reports whether the role may book on behalf of a client.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

func (r Role) Validate() error {
	switch r {
	case RoleCustomer, RoleEmployee, RoleAdmin:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Without returns a copy of the dataset with the given record ids removed.
func (d Dataset) Without(ids map[int64]struct{}) Dataset {
	if len(ids) == 0 {
		return d
	}
	out := d
	out.Records = make([]Record, 0, len(d.Records))
	for _, r := range d.Records {
		if _, skip := ids[r.ID]; skip {
			continue
		}
		out.Records = append(out.Records, r)
	}
	return out
}
