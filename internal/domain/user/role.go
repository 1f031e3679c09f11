package user

import (
	"errors"
	"regexp"
	"strings"
)

// RoleCode is the role carried in the identity token.
type RoleCode string

const (
	RoleCodeAdmin    RoleCode = "ADMIN"
	RoleCodeSeller   RoleCode = "SELLER"
	RoleCodeCustomer RoleCode = "CUSTOMER"
)

var roleCodeRegexp = regexp.MustCompile(`^[A-Z0-9_]{3,64}$`)

func (c RoleCode) IsValid() bool {
	return roleCodeRegexp.MatchString(string(c))
}

func (c RoleCode) IsAdmin() bool {
	return c == RoleCodeAdmin
}

func (c RoleCode) IsSeller() bool {
	return c == RoleCodeSeller
}

var ErrInvalidRoleCode = errors.New("invalid role code")

// ParseRoleCode converts a raw string (request, token, DB) into a RoleCode.
func ParseRoleCode(s string) (RoleCode, error) {
	c := RoleCode(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidRoleCode
	}
	return c, nil
}
