// Package hubspot implements the HubSpot-style CRM API surface: the logical
// object catalog with its endpoint templates, an authenticated JSON client,
// and the cursor-pagination engine that walks an endpoint to exhaustion.
package hubspot

import (
	"fmt"
	"sort"

	"github.com/hublift/hublift/pkg/errors"
)

// ObjectType is a logical CRM object with exactly one associated endpoint
// template. The set is fixed and closed; anything outside it is rejected
// before any I/O happens.
type ObjectType string

const (
	ObjectCampaigns          ObjectType = "campaigns"
	ObjectCompanies          ObjectType = "companies"
	ObjectContacts           ObjectType = "contacts"
	ObjectContactsByCompany  ObjectType = "contacts_by_company"
	ObjectDeals              ObjectType = "deals"
	ObjectDealPipelines      ObjectType = "deal_pipelines"
	ObjectEvents             ObjectType = "events"
	ObjectEngagements        ObjectType = "engagements"
	ObjectForms              ObjectType = "forms"
	ObjectKeywords           ObjectType = "keywords"
	ObjectLists              ObjectType = "lists"
	ObjectOwners             ObjectType = "owners"
	ObjectSocial             ObjectType = "social"
	ObjectTimeline           ObjectType = "timeline"
	ObjectWorkflows          ObjectType = "workflows"
)

// CampaignListEndpoint is the first step of the campaigns fan-out: one page
// listing campaign ids whose details are then fetched one by one.
const CampaignListEndpoint = "email/public/v1/campaigns"

// endpoints maps each object to its concrete endpoint template. Templates
// with a %s verb need a path parameter supplied at resolve time.
var endpoints = map[ObjectType]string{
	ObjectCampaigns:         "email/public/v1/campaigns/%s",
	ObjectCompanies:         "companies/v2/companies/paged",
	ObjectContacts:          "contacts/v1/lists/all/contacts/all",
	ObjectContactsByCompany: "companies/v2/companies/%s/vids",
	ObjectDeals:             "deals/v1/deal/paged",
	ObjectDealPipelines:     "deals/v1/pipelines",
	ObjectEvents:            "email/public/v1/events",
	ObjectEngagements:       "engagements/v1/engagements/paged",
	ObjectForms:             "forms/v2/forms",
	ObjectKeywords:          "keywords/v1/keywords",
	ObjectLists:             "contacts/v1/lists",
	ObjectOwners:            "owners/v2/owners",
	ObjectSocial:            "broadcast/v1/channels/setting/publish/current",
	ObjectTimeline:          "email/public/v1/subscriptions/timeline",
	ObjectWorkflows:         "automation/v3/workflows",
}

// Supported reports whether object belongs to the closed set.
func Supported(object ObjectType) bool {
	_, ok := endpoints[object]
	return ok
}

// SupportedObjects returns the closed object set in lexical order.
func SupportedObjects() []ObjectType {
	objects := make([]ObjectType, 0, len(endpoints))
	for object := range endpoints {
		objects = append(objects, object)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i] < objects[j] })
	return objects
}

// PathParams carries the path parameters required by parameterized endpoint
// templates.
type PathParams struct {
	CampaignID string
	CompanyID  string
}

// Resolver maps logical objects to concrete request endpoints.
type Resolver struct{}

// NewResolver validates object membership once so misconfiguration surfaces
// before any network I/O.
func NewResolver(object ObjectType) (*Resolver, error) {
	if !Supported(object) {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"%s is not a supported queryable object", object)
	}
	return &Resolver{}, nil
}

// Resolve returns the endpoint for object, substituting required path
// parameters. Missing parameters fail with a validation error.
func (r *Resolver) Resolve(object ObjectType, params PathParams) (string, error) {
	template, ok := endpoints[object]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeConfig,
			"%s is not a supported queryable object", object)
	}

	switch object {
	case ObjectCampaigns:
		if params.CampaignID == "" {
			return "", errors.New(errors.ErrorTypeValidation,
				"campaigns endpoint requires a campaign id")
		}
		return fmt.Sprintf(template, params.CampaignID), nil
	case ObjectContactsByCompany:
		if params.CompanyID == "" {
			return "", errors.New(errors.ErrorTypeValidation,
				"contacts_by_company endpoint requires a company id")
		}
		return fmt.Sprintf(template, params.CompanyID), nil
	default:
		return template, nil
	}
}
