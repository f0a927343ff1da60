package oracle

import (
	"encoding/json"
	"strconv"

	"github.com/repslend/repslend/internal/identity"
)

// BankAdapter normalizes bank account verifications (income statements and
// transaction history).
type BankAdapter struct{}

func (BankAdapter) Source() SourceType { return SourceBank }

type bankData struct {
	AvgIncomeCents  int64   `json:"avg_income_cents"`
	AccountAgeYears float64 `json:"account_age_years"`
	DebtToIncome    float64 `json:"debt_to_income"`
	TxHistory       string  `json:"tx_history"`
}

func (a BankAdapter) Normalize(raw json.RawMessage) ([]identity.Credential, error) {
	var data bankData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, permanent(a.Source(), "malformed payload: %v", err)
	}
	if data.AvgIncomeCents < 0 || data.AccountAgeYears < 0 || data.DebtToIncome < 0 {
		return nil, permanent(a.Source(), "negative financial figures")
	}
	return []identity.Credential{
		{
			Type: identity.CredPaymentDiscipline,
			Attributes: map[string]string{
				"dti":              strconv.FormatFloat(data.DebtToIncome, 'f', -1, 64),
				"avg_income_cents": strconv.FormatInt(data.AvgIncomeCents, 10),
				"tx_history":       data.TxHistory,
			},
		},
		{
			Type: identity.CredAccountAge,
			Attributes: map[string]string{
				"account_age_years": strconv.FormatFloat(data.AccountAgeYears, 'f', -1, 64),
			},
		},
	}, nil
}

// EmploymentAdapter normalizes employment-registry verifications.
type EmploymentAdapter struct{}

func (EmploymentAdapter) Source() SourceType { return SourceEmployment }

type employmentData struct {
	EmploymentStatus string  `json:"employment_status"`
	YearsEmployed    float64 `json:"years_employed"`
}

func (a EmploymentAdapter) Normalize(raw json.RawMessage) ([]identity.Credential, error) {
	var data employmentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, permanent(a.Source(), "malformed payload: %v", err)
	}
	if data.EmploymentStatus == "" {
		return nil, permanent(a.Source(), "employment status missing")
	}
	return []identity.Credential{
		{
			Type: identity.CredIncomeStability,
			Attributes: map[string]string{
				"employment_status": data.EmploymentStatus,
				"years_employed":    strconv.FormatFloat(data.YearsEmployed, 'f', -1, 64),
				"income_verified":   "true",
			},
		},
	}, nil
}

// PaymentAppAdapter normalizes third-party payment-app verifications (utility
// bills, rent payments, digital wallets).
type PaymentAppAdapter struct{}

func (PaymentAppAdapter) Source() SourceType { return SourcePaymentApp }

type paymentAppData struct {
	Apps     []string `json:"apps"`
	TxVolume string   `json:"tx_volume"`
}

func (a PaymentAppAdapter) Normalize(raw json.RawMessage) ([]identity.Credential, error) {
	var data paymentAppData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, permanent(a.Source(), "malformed payload: %v", err)
	}
	if len(data.Apps) == 0 {
		return nil, permanent(a.Source(), "no linked payment apps")
	}
	return []identity.Credential{
		{
			Type: identity.CredPaymentDiscipline,
			Attributes: map[string]string{
				"linked_apps": strconv.Itoa(len(data.Apps)),
				"tx_volume":   data.TxVolume,
			},
		},
	}, nil
}

// PublicRecordsAdapter normalizes public credit-record verifications.
type PublicRecordsAdapter struct{}

func (PublicRecordsAdapter) Source() SourceType { return SourcePublicRecords }

type publicRecordsData struct {
	Inquiries       int `json:"inquiries"`
	DerogatoryMarks int `json:"derogatory_marks"`
}

func (a PublicRecordsAdapter) Normalize(raw json.RawMessage) ([]identity.Credential, error) {
	var data publicRecordsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, permanent(a.Source(), "malformed payload: %v", err)
	}
	if data.Inquiries < 0 || data.DerogatoryMarks < 0 {
		return nil, permanent(a.Source(), "negative record counts")
	}
	return []identity.Credential{
		{
			Type: identity.CredCreditHistory,
			Attributes: map[string]string{
				"inquiries":        strconv.Itoa(data.Inquiries),
				"derogatory_marks": strconv.Itoa(data.DerogatoryMarks),
			},
		},
	}, nil
}

// DefaultAdapters returns one adapter per supported source.
func DefaultAdapters() []Adapter {
	return []Adapter{
		BankAdapter{},
		EmploymentAdapter{},
		PaymentAppAdapter{},
		PublicRecordsAdapter{},
	}
}
