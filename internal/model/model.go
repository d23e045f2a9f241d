// Package model defines the domain records exchanged between the data store,
// the session store and the HTTP layer. All types are plain records; JSON
// field names match the wire format consumed by the dashboard frontend.
package model

import "time"

// UserRole is the access level of a back-office user.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleUser       UserRole = "USER"
)

// MeterType distinguishes water and electricity meters.
type MeterType string

const (
	MeterWater       MeterType = "WATER"
	MeterElectricity MeterType = "ELECTRICITY"
)

// User is a back-office user account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthUser is a User carrying its session token. It only ever lives in
// session state and durable storage, never in the user table.
type AuthUser struct {
	User
	Token string `json:"token"`
}

// District is a static reference record.
type District struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Agent is a field agent performing meter readings.
type Agent struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Phone          string `json:"phone"`
	SecondaryPhone string `json:"secondaryPhone,omitempty"`
	DistrictID     string `json:"districtId"`
}

// Address ties a client to a street in a district.
type Address struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	DistrictID string `json:"districtId"`
	ClientID   string `json:"clientId"`
}

// Client is the utility customer a meter is billed to.
type Client struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
}

// Meter is an installed water or electricity meter. Identifier is always a
// zero-padded 9-digit string. CurrentIndex only moves forward.
type Meter struct {
	ID              string     `json:"id"`
	Identifier      string     `json:"identifier"`
	Type            MeterType  `json:"type"`
	AddressID       string     `json:"addressId"`
	ClientID        string     `json:"clientId"`
	CurrentIndex    int        `json:"currentIndex"`
	LastReadingDate *time.Time `json:"lastReadingDate"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Reading is one index capture by an agent. Invariant:
// NewIndex - OldIndex == Consumption and Consumption >= 0.
type Reading struct {
	ID          string    `json:"id"`
	MeterID     string    `json:"meterId"`
	AgentID     string    `json:"agentId"`
	Date        time.Time `json:"date"`
	OldIndex    int       `json:"oldIndex"`
	NewIndex    int       `json:"newIndex"`
	Consumption int       `json:"consumption"`
	Type        MeterType `json:"type"`
	Notes       string    `json:"notes,omitempty"`
}

// Filter types. Zero-valued fields are ignored; set fields are AND-combined.

type UserFilters struct {
	Role   UserRole
	Search string
}

type AgentFilters struct {
	DistrictID string
	Search     string
}

type MeterFilters struct {
	DistrictID string
	Type       MeterType
	Search     string
}

type ReadingFilters struct {
	Date       string // date prefix, e.g. "2025-08" or "2025-08-31"
	DistrictID string
	AgentID    string
	ClientID   string
	Type       MeterType
	Search     string
}

// DashboardStats is the KPI block on the dashboard home page.
type DashboardStats struct {
	TotalMeters               int     `json:"totalMeters"`
	MetersRead                int     `json:"metersRead"`
	CoverageRate              float64 `json:"coverageRate"`
	TodayReadings             int     `json:"todayReadings"`
	AvgWaterConsumption       float64 `json:"avgWaterConsumption"`
	AvgElectricityConsumption float64 `json:"avgElectricityConsumption"`
}

// AgentPerformance is one point of an agent reading-count series.
type AgentPerformance struct {
	AgentID       string `json:"agentId"`
	AgentName     string `json:"agentName"`
	ReadingsCount int    `json:"readingsCount"`
	Date          string `json:"date"`
}

// AgentReadingCount is the all-time reading total of one agent.
type AgentReadingCount struct {
	AgentID       string `json:"agentId"`
	AgentName     string `json:"agentName"`
	ReadingsCount int    `json:"readingsCount"`
}

// ConsumptionTrend is one month of the consumption trend chart.
type ConsumptionTrend struct {
	Month       string `json:"month"`
	Water       int    `json:"water"`
	Electricity int    `json:"electricity"`
}

// Credential is one entry of the seed credential list. Passwords are checked
// verbatim; a real backend replaces this with a credential service.
type Credential struct {
	Email    string
	Password string
	UserID   string
}
