package models

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MaintenanceType string

const (
	MaintenanceOilChange    MaintenanceType = "oil-change"
	MaintenanceBrakeService MaintenanceType = "brake-service"
	MaintenanceInspection   MaintenanceType = "inspection"
	MaintenanceChainBelt    MaintenanceType = "chain/belt-service"
	MaintenanceOther        MaintenanceType = "other"
)

var MaintenanceTypes = []MaintenanceType{
	MaintenanceOilChange,
	MaintenanceBrakeService,
	MaintenanceInspection,
	MaintenanceChainBelt,
	MaintenanceOther,
}

func (t MaintenanceType) IsValid() bool {
	switch t {
	case MaintenanceOilChange, MaintenanceBrakeService, MaintenanceInspection, MaintenanceChainBelt, MaintenanceOther:
		return true
	}
	return false
}

type Axle string

const (
	AxleFront Axle = "front"
	AxleRear  Axle = "rear"
	AxleBoth  Axle = "both"
)

type InspectionResult string

const (
	InspectionOK     InspectionResult = "ok"
	InspectionIssues InspectionResult = "issues"
)

type TimingKind string

const (
	TimingChain TimingKind = "chain"
	TimingBelt  TimingKind = "belt"
)

// Details is the variant payload of a maintenance record. Implementations are
// always held by pointer.
type Details interface {
	Kind() MaintenanceType
}

type OilChangeDetails struct {
	OilType     string  `json:"oilType" bson:"oil_type" validate:"oil_type"`
	OilBrand    string  `json:"oilBrand" bson:"oil_brand" validate:"oil_brand"`
	OilQuantity float64 `json:"oilQuantity" bson:"oil_quantity" validate:"gt=0"`
	IsSynthetic bool    `json:"isSynthetic" bson:"is_synthetic"`
	OilFilter   string  `json:"oilFilter,omitempty" bson:"oil_filter,omitempty"`
	DrainWasher bool    `json:"drainWasher" bson:"drain_washer"`
}

type BrakeDetails struct {
	Axle          Axle `json:"axle" bson:"axle" validate:"oneof=front rear both"`
	PadsReplaced  bool `json:"padsReplaced" bson:"pads_replaced"`
	DiscsReplaced bool `json:"discsReplaced" bson:"discs_replaced"`
}

type InspectionDetails struct {
	Result InspectionResult `json:"result" bson:"result" validate:"oneof=ok issues"`
	Notes  string           `json:"notes,omitempty" bson:"notes,omitempty"`
}

type ChainBeltDetails struct {
	Timing       TimingKind `json:"timing" bson:"timing" validate:"oneof=chain belt"`
	Brand        string     `json:"brand" bson:"brand" validate:"notblank"`
	WaterPump    bool       `json:"waterPump" bson:"water_pump"`
	TimingGuides bool       `json:"timingGuides" bson:"timing_guides"`
}

type OtherDetails struct {
	Description string `json:"description" bson:"description" validate:"notblank"`
}

func (*OilChangeDetails) Kind() MaintenanceType  { return MaintenanceOilChange }
func (*BrakeDetails) Kind() MaintenanceType      { return MaintenanceBrakeService }
func (*InspectionDetails) Kind() MaintenanceType { return MaintenanceInspection }
func (*ChainBeltDetails) Kind() MaintenanceType  { return MaintenanceChainBelt }
func (*OtherDetails) Kind() MaintenanceType      { return MaintenanceOther }

// NewDetails returns an empty payload for the given variant.
func NewDetails(t MaintenanceType) (Details, error) {
	switch t {
	case MaintenanceOilChange:
		return &OilChangeDetails{}, nil
	case MaintenanceBrakeService:
		return &BrakeDetails{}, nil
	case MaintenanceInspection:
		return &InspectionDetails{}, nil
	case MaintenanceChainBelt:
		return &ChainBeltDetails{}, nil
	case MaintenanceOther:
		return &OtherDetails{}, nil
	}
	return nil, fmt.Errorf("unknown maintenance type %q", t)
}

// MaintenanceRecord is one logged service event. Persistence goes through the
// repository's document type so the details payload can be decoded by variant.
type MaintenanceRecord struct {
	ID         primitive.ObjectID `json:"id"`
	VehicleID  string             `json:"vehicleId"`
	Type       MaintenanceType    `json:"type"`
	Date       string             `json:"date"`
	Mileage    int                `json:"mileage"`
	LaborCost  float64            `json:"laborCost"`
	PartsCost  float64            `json:"partsCost"`
	TotalCost  float64            `json:"totalCost"`
	Notes      string             `json:"notes"`
	Details    Details            `json:"details"`
	MechanicID string             `json:"mechanicId,omitempty"`
	CreatedBy  string             `json:"createdBy"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// UnmarshalJSON decodes the details payload into the struct matching Type.
func (r *MaintenanceRecord) UnmarshalJSON(data []byte) error {
	type alias MaintenanceRecord
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Details = nil
	if len(aux.Details) == 0 || string(aux.Details) == "null" {
		return nil
	}

	details, err := NewDetails(r.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(aux.Details, details); err != nil {
		return fmt.Errorf("invalid %s details: %w", r.Type, err)
	}
	r.Details = details
	return nil
}
