package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"dhronas-fees/internal/domain"
	"dhronas-fees/internal/service"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", "invalid JSON")
	}
	return nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (r createAdminRequest) toService() service.CreateAdminRequest {
	return service.CreateAdminRequest{Name: r.Name, Email: r.Email, Password: r.Password, Phone: r.Phone}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type paymentRequest struct {
	IdentifierType string          `json:"identifierType"`
	Identifier     string          `json:"identifier"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionID  string          `json:"transactionId"`
	Description    string          `json:"description"`
}

// toService takes the idempotency key from the Idempotency-Key header when
// the body does not carry a transactionId.
func (p paymentRequest) toService(r *http.Request) service.RecordPaymentRequest {
	txID := strings.TrimSpace(p.TransactionID)
	if txID == "" {
		txID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	return service.RecordPaymentRequest{
		Identifier:     strings.TrimSpace(p.Identifier),
		IdentifierType: service.IdentifierType(p.IdentifierType),
		Amount:         p.Amount,
		TransactionID:  txID,
		Description:    p.Description,
	}
}

type enrollRequest struct {
	Name                 string          `json:"name"`
	Address              string          `json:"address"`
	Email                string          `json:"email"`
	Password             string          `json:"password"`
	Course               string          `json:"course"`
	Phone                string          `json:"phone"`
	BatchNo              string          `json:"batchNo"`
	FatherOrGuardianName string          `json:"fatherOrGuardianName"`
	DOB                  string          `json:"dob"`
	TotalFees            decimal.Decimal `json:"Total_fees"`
	InitialPayment       decimal.Decimal `json:"initialPayment"`
	InstallmentCount     int             `json:"installmentCount"`
}

func (e enrollRequest) toService() (service.EnrollRequest, error) {
	req := service.EnrollRequest{
		Name:                 e.Name,
		Address:              e.Address,
		Email:                e.Email,
		Password:             e.Password,
		Course:               e.Course,
		Phone:                e.Phone,
		BatchNo:              e.BatchNo,
		FatherOrGuardianName: e.FatherOrGuardianName,
		TotalFees:            e.TotalFees,
		InitialPayment:       e.InitialPayment,
		InstallmentCount:     e.InstallmentCount,
	}
	if dob := strings.TrimSpace(e.DOB); dob != "" {
		parsed, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return req, domain.NewValidationError("dob", "dob must be YYYY-MM-DD")
		}
		req.DOB = &parsed
	}
	return req, nil
}

type submitEnrollmentRequest struct {
	Token                string `json:"token"`
	Name                 string `json:"name"`
	Address              string `json:"address"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	Course               string `json:"course"`
	Phone                string `json:"phone"`
	FatherOrGuardianName string `json:"fatherOrGuardianName"`
	DOB                  string `json:"dob"`
}

func (s submitEnrollmentRequest) toService() service.SubmitEnrollmentRequest {
	return service.SubmitEnrollmentRequest{
		Token:                s.Token,
		Name:                 s.Name,
		Address:              s.Address,
		Email:                s.Email,
		Password:             s.Password,
		Course:               s.Course,
		Phone:                s.Phone,
		FatherOrGuardianName: s.FatherOrGuardianName,
		DOB:                  s.DOB,
	}
}

type approveRequest struct {
	Token           string          `json:"token"`
	TotalFees       decimal.Decimal `json:"Total_fees"`
	BatchNo         string          `json:"batchNo"`
	InitialPayment  decimal.Decimal `json:"initial_payment"`
	Installments    int             `json:"no_of_installments"`
	DiscountPercent decimal.Decimal `json:"discount_offered"`
}

func (a approveRequest) toService() service.ApproveRequest {
	return service.ApproveRequest{
		Token:           a.Token,
		TotalFees:       a.TotalFees,
		BatchNo:         a.BatchNo,
		InitialPayment:  a.InitialPayment,
		Installments:    a.Installments,
		DiscountPercent: a.DiscountPercent,
	}
}

type courseRequest struct {
	Name string `json:"name"`
}

type downloadLogRequest struct {
	StudentID     string `json:"studentId"`
	ActionType    string `json:"actionType"`
	InvoiceNumber string `json:"invoiceNumber"`
}

type ledgerExportRequest struct {
	Fields []string `json:"fields"`
	Month  string   `json:"month"`
	Batch  string   `json:"batch"`
}

func (l ledgerExportRequest) toService() service.LedgerExportRequest {
	return service.LedgerExportRequest{Columns: l.Fields, Month: l.Month, Batch: l.Batch}
}

