package iati

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"aidimport/internal/model"
)

// solrResponse mirrors the datastore's Solr-flavoured activity select
// payload. Multi-valued elements arrive as parallel arrays, one entry per
// sub-record, in declaration order.
type solrResponse struct {
	Response struct {
		NumFound int       `json:"numFound"`
		Docs     []solrDoc `json:"docs"`
	} `json:"response"`
}

type solrDoc struct {
	IATIIdentifier       string   `json:"iati_identifier"`
	TitleNarrative       []string `json:"title_narrative"`
	DescriptionNarrative []string `json:"description_narrative"`
	ActivityStatusCode   string   `json:"activity_status_code"`
	ReportingOrgRef      string   `json:"reporting_org_ref"`
	DefaultCurrency      string   `json:"default_currency"`

	TransactionType     []string  `json:"transaction_transaction_type_code"`
	TransactionDate     []string  `json:"transaction_transaction_date_iso_date"`
	TransactionValue    []float64 `json:"transaction_value"`
	TransactionCurrency []string  `json:"transaction_value_currency"`

	BudgetPeriodStart []string  `json:"budget_period_start_iso_date"`
	BudgetPeriodEnd   []string  `json:"budget_period_end_iso_date"`
	BudgetValue       []float64 `json:"budget_value"`

	SectorCode       []string  `json:"sector_code"`
	SectorNarrative  []string  `json:"sector_narrative"`
	SectorPercentage []float64 `json:"sector_percentage"`

	LocationRef       []string `json:"location_ref"`
	LocationNarrative []string `json:"location_name_narrative"`

	ContactType  []string `json:"contact_info_type"`
	ContactOrg   []string `json:"contact_info_organisation_narrative"`
	ContactEmail []string `json:"contact_info_email"`

	DocumentURL      []string `json:"document_link_url"`
	DocumentTitle    []string `json:"document_link_title_narrative"`
	DocumentCategory []string `json:"document_link_category_code"`

	PolicyMarkerCode         []string `json:"policy_marker_code"`
	PolicyMarkerSignificance []string `json:"policy_marker_significance"`

	HumanitarianScopeType []string `json:"humanitarian_scope_type"`
	HumanitarianScopeCode []string `json:"humanitarian_scope_code"`

	TagVocabulary []string `json:"tag_vocabulary"`
	TagCode       []string `json:"tag_code"`
}

// FetchActivitiesByIdentifiers fetches records for an explicit identifier set
func (c *client) FetchActivitiesByIdentifiers(ctx context.Context, ids []string) ([]model.ActivityRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	query := fmt.Sprintf("iati_identifier:(%s)", strings.Join(quoted, " OR "))

	return c.search(ctx, query, len(ids))
}

// FetchOrganisationActivities fetches the activities one organisation reports
func (c *client) FetchOrganisationActivities(ctx context.Context, orgRef string, rows int) ([]model.ActivityRecord, error) {
	if rows <= 0 {
		rows = 100
	}
	query := fmt.Sprintf("reporting_org_ref:%q", orgRef)

	return c.search(ctx, query, rows)
}

func (c *client) search(ctx context.Context, query string, rows int) ([]model.ActivityRecord, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("rows", fmt.Sprintf("%d", rows))
	params.Set("wt", "json")

	endpoint := fmt.Sprintf("%s/activity/select?%s", strings.TrimRight(c.cfg.DatastoreURL, "/"), params.Encode())

	body, err := c.request(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed solrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse datastore response: %w", err)
	}

	records := make([]model.ActivityRecord, 0, len(parsed.Response.Docs))
	for i := range parsed.Response.Docs {
		records = append(records, mapDoc(&parsed.Response.Docs[i]))
	}

	return records, nil
}

// mapDoc reassembles a flattened Solr doc into an ActivityRecord. Parallel
// arrays are zipped positionally; a missing column yields a zero value for
// that field rather than dropping the sub-record.
func mapDoc(doc *solrDoc) model.ActivityRecord {
	record := model.ActivityRecord{
		IATIIdentifier:  doc.IATIIdentifier,
		Title:           first(doc.TitleNarrative),
		Description:     first(doc.DescriptionNarrative),
		ActivityStatus:  doc.ActivityStatusCode,
		ReportingOrg:    doc.ReportingOrgRef,
		DefaultCurrency: doc.DefaultCurrency,
	}

	for i := range doc.TransactionValue {
		record.Transactions = append(record.Transactions, model.Transaction{
			Type:     at(doc.TransactionType, i),
			Date:     at(doc.TransactionDate, i),
			Value:    doc.TransactionValue[i],
			Currency: at(doc.TransactionCurrency, i),
		})
	}

	for i := range doc.BudgetValue {
		record.Budgets = append(record.Budgets, model.Budget{
			PeriodStart: at(doc.BudgetPeriodStart, i),
			PeriodEnd:   at(doc.BudgetPeriodEnd, i),
			Value:       doc.BudgetValue[i],
		})
	}

	for i := range doc.SectorCode {
		record.Sectors = append(record.Sectors, model.Sector{
			Code:       doc.SectorCode[i],
			Name:       at(doc.SectorNarrative, i),
			Percentage: atF(doc.SectorPercentage, i),
		})
	}

	for i := range doc.LocationNarrative {
		record.Locations = append(record.Locations, model.Location{
			Ref:  at(doc.LocationRef, i),
			Name: doc.LocationNarrative[i],
		})
	}

	for i := range doc.ContactEmail {
		record.Contacts = append(record.Contacts, model.Contact{
			Type:         at(doc.ContactType, i),
			Organisation: at(doc.ContactOrg, i),
			Email:        doc.ContactEmail[i],
		})
	}

	for i := range doc.DocumentURL {
		record.Documents = append(record.Documents, model.Document{
			URL:      doc.DocumentURL[i],
			Title:    at(doc.DocumentTitle, i),
			Category: at(doc.DocumentCategory, i),
		})
	}

	for i := range doc.PolicyMarkerCode {
		record.PolicyMarkers = append(record.PolicyMarkers, model.PolicyMarker{
			Code:         doc.PolicyMarkerCode[i],
			Significance: at(doc.PolicyMarkerSignificance, i),
		})
	}

	for i := range doc.HumanitarianScopeCode {
		record.HumanitarianScopes = append(record.HumanitarianScopes, model.HumanitarianScope{
			Type: at(doc.HumanitarianScopeType, i),
			Code: doc.HumanitarianScopeCode[i],
		})
	}

	for i := range doc.TagCode {
		record.Tags = append(record.Tags, model.Tag{
			Vocabulary: at(doc.TagVocabulary, i),
			Code:       doc.TagCode[i],
		})
	}

	return record
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func at(values []string, i int) string {
	if i >= len(values) {
		return ""
	}
	return values[i]
}

func atF(values []float64, i int) float64 {
	if i >= len(values) {
		return 0
	}
	return values[i]
}
