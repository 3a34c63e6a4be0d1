package crm

import "github.com/tidwall/gjson"

// CRM object and field names used by the proxy endpoints.
const (
	VisitorChipObject = "VisitorChip__c"
	OrderObject       = "OrderEntry__c"
)

// Customer is a visitor chip on the store layout map.
type Customer struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	VisitDateTime  string  `json:"visitDateTime"`
	NumberOfGuests int64   `json:"numberOfGuests"`
	XCoordinate    float64 `json:"xCoordinate"`
	YCoordinate    float64 `json:"yCoordinate"`
}

// Category is a menu category.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int64  `json:"sortOrder"`
}

// Menu is an orderable item.
type Menu struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	CategoryID string  `json:"categoryId"`
}

// CustomerFromRecord maps a visitor chip query record.
func CustomerFromRecord(rec gjson.Result) Customer {
	return Customer{
		ID:             rec.Get("Id").String(),
		Name:           rec.Get("VisitorName__c").String(),
		VisitDateTime:  rec.Get("VisitedAt__c").String(),
		NumberOfGuests: rec.Get("PartySize__c").Int(),
		XCoordinate:    rec.Get("XCoord__c").Float(),
		YCoordinate:    rec.Get("YCoord__c").Float(),
	}
}

// CategoryFromRecord maps a category query record.
func CategoryFromRecord(rec gjson.Result) Category {
	return Category{
		ID:        rec.Get("Id").String(),
		Name:      rec.Get("Name").String(),
		SortOrder: rec.Get("SortOrder__c").Int(),
	}
}

// MenuFromRecord maps a menu query record.
func MenuFromRecord(rec gjson.Result) Menu {
	return Menu{
		ID:         rec.Get("Id").String(),
		Name:       rec.Get("Name").String(),
		Price:      rec.Get("Price__c").Float(),
		CategoryID: rec.Get("Category__c").String(),
	}
}
