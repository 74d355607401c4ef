package domain

import (
	"fmt"
	"strings"
)

// UserType is the declared role of the actor requesting data.
type UserType string

const (
	UserTypePrimary   UserType = "primary"
	UserTypeSecondary UserType = "secondary"
)

func (t UserType) String() string { return string(t) }

func (t UserType) IsValid() bool {
	switch t {
	case UserTypePrimary, UserTypeSecondary:
		return true
	}
	return false
}

func ParseUserTypeFromString(s string) (UserType, error) {
	ut := UserType(strings.ToLower(strings.TrimSpace(s)))
	if !ut.IsValid() {
		return "", fmt.Errorf("%w: invalid user type %q", ErrValidation, s)
	}
	return ut, nil
}

// Action is the operation requested on a data category.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

func (a Action) String() string { return string(a) }

func (a Action) IsValid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete:
		return true
	}
	return false
}

// ParseActionFromString defaults an empty value to ActionRead.
func ParseActionFromString(s string) (Action, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return ActionRead, nil
	}
	a := Action(normalized)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid action %q", ErrValidation, s)
	}
	return a, nil
}

// DataCategory tags a slice of a primary user's data.
type DataCategory string

const (
	DataCategoryVitals        DataCategory = "vitals"
	DataCategoryMedications   DataCategory = "medications"
	DataCategoryAppointments  DataCategory = "appointments"
	DataCategoryHealthRecords DataCategory = "healthRecords"
	DataCategoryAlerts        DataCategory = "alerts"
	DataCategoryMessages      DataCategory = "messages"
	DataCategoryDevices       DataCategory = "devices"
)

// AllDataCategories lists every category in a stable order.
var AllDataCategories = []DataCategory{
	DataCategoryVitals,
	DataCategoryMedications,
	DataCategoryAppointments,
	DataCategoryHealthRecords,
	DataCategoryAlerts,
	DataCategoryMessages,
	DataCategoryDevices,
}

func (c DataCategory) String() string { return string(c) }

func (c DataCategory) IsValid() bool {
	_, err := RequiredPermission(c)
	return err == nil
}

// ParseDataCategoryFromString matches categories case-insensitively.
func ParseDataCategoryFromString(s string) (DataCategory, error) {
	trimmed := strings.TrimSpace(s)
	for _, c := range AllDataCategories {
		if strings.EqualFold(string(c), trimmed) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: invalid data category %q", ErrValidation, s)
}

// PermissionKey names one capability bit of a PermissionSet.
type PermissionKey string

const (
	PermissionViewVitals        PermissionKey = "canViewVitals"
	PermissionViewMedications   PermissionKey = "canViewMedications"
	PermissionViewAppointments  PermissionKey = "canViewAppointments"
	PermissionViewHealthRecords PermissionKey = "canViewHealthRecords"
	PermissionReceiveAlerts     PermissionKey = "canReceiveAlerts"
	PermissionSendMessages      PermissionKey = "canSendMessages"
	PermissionManageDevices     PermissionKey = "canManageDevices"
)

func (k PermissionKey) String() string { return string(k) }

// RequiredPermission maps a category to the single permission key that gates it.
func RequiredPermission(c DataCategory) (PermissionKey, error) {
	switch c {
	case DataCategoryVitals:
		return PermissionViewVitals, nil
	case DataCategoryMedications:
		return PermissionViewMedications, nil
	case DataCategoryAppointments:
		return PermissionViewAppointments, nil
	case DataCategoryHealthRecords:
		return PermissionViewHealthRecords, nil
	case DataCategoryAlerts:
		return PermissionReceiveAlerts, nil
	case DataCategoryMessages:
		return PermissionSendMessages, nil
	case DataCategoryDevices:
		return PermissionManageDevices, nil
	}
	return "", fmt.Errorf("%w: no permission mapped for data category %q", ErrValidation, c)
}

// PermissionSet is the capability set a primary user grants a care-circle member.
type PermissionSet struct {
	CanViewVitals        bool `json:"canViewVitals" dynamodbav:"canViewVitals"`
	CanViewMedications   bool `json:"canViewMedications" dynamodbav:"canViewMedications"`
	CanViewAppointments  bool `json:"canViewAppointments" dynamodbav:"canViewAppointments"`
	CanViewHealthRecords bool `json:"canViewHealthRecords" dynamodbav:"canViewHealthRecords"`
	CanReceiveAlerts     bool `json:"canReceiveAlerts" dynamodbav:"canReceiveAlerts"`
	CanSendMessages      bool `json:"canSendMessages" dynamodbav:"canSendMessages"`
	CanManageDevices     bool `json:"canManageDevices" dynamodbav:"canManageDevices"`
}

// Allows reads exactly one bit. Unknown keys are never allowed.
func (p PermissionSet) Allows(key PermissionKey) bool {
	switch key {
	case PermissionViewVitals:
		return p.CanViewVitals
	case PermissionViewMedications:
		return p.CanViewMedications
	case PermissionViewAppointments:
		return p.CanViewAppointments
	case PermissionViewHealthRecords:
		return p.CanViewHealthRecords
	case PermissionReceiveAlerts:
		return p.CanReceiveAlerts
	case PermissionSendMessages:
		return p.CanSendMessages
	case PermissionManageDevices:
		return p.CanManageDevices
	}
	return false
}

// AllowsCategory resolves the category's key and reads that bit.
func (p PermissionSet) AllowsCategory(c DataCategory) bool {
	key, err := RequiredPermission(c)
	if err != nil {
		return false
	}
	return p.Allows(key)
}

// Presets used when a primary user invites a new care-circle member.
var (
	FullAccessPermissions = PermissionSet{
		CanViewVitals:        true,
		CanViewMedications:   true,
		CanViewAppointments:  true,
		CanViewHealthRecords: true,
		CanReceiveAlerts:     true,
		CanSendMessages:      true,
		CanManageDevices:     true,
	}

	DefaultPermissions = PermissionSet{
		CanViewVitals:       true,
		CanViewMedications:  true,
		CanViewAppointments: true,
		CanReceiveAlerts:    true,
		CanSendMessages:     true,
	}

	LimitedPermissions = PermissionSet{
		CanViewAppointments: true,
		CanReceiveAlerts:    true,
	}
)
