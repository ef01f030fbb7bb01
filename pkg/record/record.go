// Package record defines the notification record extracted from the
// registry, its fixed column schema and the identifier helpers used to
// filter rows by period.
package record

import (
	"regexp"
	"strings"
)

// NotificationRecord is one extracted registry item. Number is the natural key.
type NotificationRecord struct {
	TradeName            string
	CosmeticName         string
	Number               string
	Period               string
	Type                 string
	Status               string
	ApproveDate          string
	ExpireDate           string
	OperatorName         string
	ForeignManufacturer  string
	ContractManufacturer string
	ReferenceFor         string
	SKUs                 string

	// OperatorQuery is the operator name the record was searched under.
	OperatorQuery string
}

const (
	ColTradeName            = "trade_name"
	ColCosmeticName         = "cosmetic_name"
	ColNumber               = "notification_no"
	ColPeriod               = "notification_year_be_last2"
	ColType                 = "notification_type"
	ColStatus               = "notification_status"
	ColApproveDate          = "approve_date"
	ColExpireDate           = "expire_date"
	ColOperatorName         = "operator_name"
	ColForeignManufacturer  = "foreign_mfr"
	ColContractManufacturer = "contract_manufacturer"
	ColReferenceFor         = "reference_for"
	ColSKUs                 = "skus"
)

// Columns is the export schema, in output order.
var Columns = []string{
	ColTradeName, ColCosmeticName, ColNumber, ColPeriod,
	ColType, ColStatus, ColApproveDate, ColExpireDate,
	ColOperatorName, ColForeignManufacturer, ColContractManufacturer, ColReferenceFor, ColSKUs,
}

// headers maps schema columns to the display headers used in exported files.
var headers = map[string]string{
	ColTradeName:            "ชื่อการค้า",
	ColCosmeticName:         "ชื่อเครื่องสำอาง",
	ColNumber:               "เลขที่ใบรับจดแจ้ง",
	ColPeriod:               "ปีที่จดแจ้ง",
	ColType:                 "ประเภทการจดแจ้ง",
	ColStatus:               "สถานะใบรับจดแจ้ง",
	ColApproveDate:          "วันที่อนุญาต",
	ColExpireDate:           "วันที่หมดอายุ",
	ColOperatorName:         "ชื่อผู้ประกอบการ",
	ColForeignManufacturer:  "ชื่อและที่อยู่ผู้ผลิตต่างประเทศ",
	ColContractManufacturer: "ชื่อผู้ว่าจ้างผลิต",
	ColReferenceFor:         "เลขอ้างอิงสำหรับ",
	ColSKUs:                 "SKUs",
}

var columnsByHeader map[string]string

func init() {
	columnsByHeader = make(map[string]string, len(headers))
	for col, h := range headers {
		columnsByHeader[h] = col
	}
}

// Header returns the display header for a schema column.
func Header(col string) string {
	if h, ok := headers[col]; ok {
		return h
	}
	return col
}

// Headers returns the display headers for Columns.
func Headers() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = Header(c)
	}
	return out
}

// ColumnFor resolves either a schema column name or its display header.
func ColumnFor(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if _, ok := headers[header]; ok {
		return header, true
	}
	col, ok := columnsByHeader[header]
	return col, ok
}

// Get returns the value stored under a schema column.
func (r NotificationRecord) Get(col string) string {
	switch col {
	case ColTradeName:
		return r.TradeName
	case ColCosmeticName:
		return r.CosmeticName
	case ColNumber:
		return r.Number
	case ColPeriod:
		return r.Period
	case ColType:
		return r.Type
	case ColStatus:
		return r.Status
	case ColApproveDate:
		return r.ApproveDate
	case ColExpireDate:
		return r.ExpireDate
	case ColOperatorName:
		return r.OperatorName
	case ColForeignManufacturer:
		return r.ForeignManufacturer
	case ColContractManufacturer:
		return r.ContractManufacturer
	case ColReferenceFor:
		return r.ReferenceFor
	case ColSKUs:
		return r.SKUs
	}
	return ""
}

// Set stores v under a schema column. Unknown columns are ignored.
func (r *NotificationRecord) Set(col, v string) {
	switch col {
	case ColTradeName:
		r.TradeName = v
	case ColCosmeticName:
		r.CosmeticName = v
	case ColNumber:
		r.Number = v
	case ColPeriod:
		r.Period = v
	case ColType:
		r.Type = v
	case ColStatus:
		r.Status = v
	case ColApproveDate:
		r.ApproveDate = v
	case ColExpireDate:
		r.ExpireDate = v
	case ColOperatorName:
		r.OperatorName = v
	case ColForeignManufacturer:
		r.ForeignManufacturer = v
	case ColContractManufacturer:
		r.ContractManufacturer = v
	case ColReferenceFor:
		r.ReferenceFor = v
	case ColSKUs:
		r.SKUs = v
	}
}

// Values returns the record as a row in Columns order.
func (r NotificationRecord) Values() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = r.Get(c)
	}
	return out
}

// DisplayName picks a short human label: trade name, else cosmetic name, else number.
func (r NotificationRecord) DisplayName() string {
	switch {
	case r.TradeName != "":
		return r.TradeName
	case r.CosmeticName != "":
		return r.CosmeticName
	}
	return r.Number
}

// OperatorKey is the operator a record is grouped under: the name shown on
// the detail page, else the name it was searched by.
func (r NotificationRecord) OperatorKey() string {
	if op := strings.TrimSpace(r.OperatorName); op != "" {
		return op
	}
	return strings.TrimSpace(r.OperatorQuery)
}

var nonDigits = regexp.MustCompile(`\D+`)

func numberTokens(no string) []string {
	var toks []string
	for _, t := range nonDigits.Split(strings.TrimSpace(no), -1) {
		if t != "" {
			toks = append(toks, t)
		}
	}
	return toks
}

// PeriodFromNumber derives the two-digit period from the third numeric token
// of a notification number. Malformed numbers yield "".
func PeriodFromNumber(no string) string {
	toks := numberTokens(no)
	if len(toks) < 3 || len(toks[2]) < 2 {
		return ""
	}
	return toks[2][:2]
}

// InAllowedPeriods reports whether the third token of no starts with one of the periods.
func InAllowedPeriods(no string, periods []string) bool {
	toks := numberTokens(no)
	if len(toks) < 3 {
		return false
	}
	for _, p := range periods {
		if p != "" && strings.HasPrefix(toks[2], p) {
			return true
		}
	}
	return false
}

var rowNumberRe = regexp.MustCompile(`\b(\d{1,2})\D+(\d{1,2})\D+(\d{2,})\b`)

// NumberFromText finds the first notification-number-like triple in a grid
// row's text and returns it in canonical a-b-c form, or "".
func NumberFromText(text string) string {
	m := rowNumberRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}
