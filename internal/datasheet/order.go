package datasheet

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a decimal that encodes as a bare JSON number, the way the
// document store holds spreadsheet figures. Empty strings decode as zero.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == `""` {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(trimmed)
}

// ParseAmount converts spreadsheet text to an Amount; anything unparseable is zero.
func ParseAmount(raw string) Amount {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if raw == "" {
		return Amount{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Amount{}
	}
	return Amount{Decimal: d}
}

// Order is one F3 order record. JSON keys match the document store.
type Order struct {
	ID string `json:"-"`

	OrderCode        string `json:"Mã_đơn_hàng"`
	Product          string `json:"Mặt_hàng"`
	OrderDate        string `json:"Ngày_lên_đơn"`
	Name             string `json:"Name"`
	Market           string `json:"Khu_vực"`
	City             string `json:"City"`
	State            string `json:"State"`
	Zipcode          string `json:"Zipcode"`
	GoodsValue       Amount `json:"Tiền_Hàng"`
	FulfillmentFee   Amount `json:"Phí_FFM"`
	SharedFee        Amount `json:"Phí_Chung"`
	FlightFee        Amount `json:"Phí_bay"`
	AccountRent      Amount `json:"Thuê_TK"`
	ShippingFee      Amount `json:"Phí_ship"`
	ReconciledVND    Amount `json:"Tiền_Việt_đã_đối_soát"`
	AccountantNote   string `json:"Kế_toán_xác_nhận_thu_tiền_về"`
	TotalVND         Amount `json:"Tổng_tiền_VNĐ"`
	DeliveryStatus   string `json:"Trạng_thái_giao_hàng_NB"`
	Team             string `json:"Team"`
	Note             string `json:"Ghi_chú"`
	PaymentMethod    string `json:"Hình_thức_thanh_toán"`
	CheckResult      string `json:"Kết_quả_Check"`
	Reason           string `json:"Lý_do"`
	TrackingCode     string `json:"Mã_Tracking"`
	ShippingClerk    string `json:"NV_Vận_đơn"`
	MarketingStaff   string `json:"Nhân_viên_Marketing"`
	CutoffTime       string `json:"Thời_gian_cutoff"`
	CollectionStatus string `json:"Trạng_thái_thu_tiền"`
	Carrier          string `json:"Đơn_vị_vận_chuyển"`
}

// Row is one spreadsheet record keyed by header text.
type Row map[string]string

func (r Row) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// OrderFromRow maps a spreadsheet row, accepting both spaced headers and
// document-store keys. ok is false when the row has no order code.
func OrderFromRow(r Row) (Order, bool) {
	o := Order{
		OrderCode:        r.first("Mã đơn hàng", "Mã_đơn_hàng"),
		Product:          r.first("Mặt hàng", "Mặt_hàng"),
		OrderDate:        r.first("Ngày lên đơn", "Ngày_lên_đơn"),
		Name:             r.first("Name", "Tên"),
		Market:           r.first("Khu vực", "Khu_vực"),
		City:             r.first("City", "Thành phố"),
		State:            r.first("State", "Bang"),
		Zipcode:          r.first("Zipcode"),
		GoodsValue:       ParseAmount(r.first("Tiền Hàng", "Tiền_Hàng")),
		FulfillmentFee:   ParseAmount(r.first("Phí FFM", "Phí_FFM")),
		SharedFee:        ParseAmount(r.first("Chi phí chung", "Phí Chung", "Phí_Chung")),
		FlightFee:        ParseAmount(r.first("Phí bay", "Phí Bay", "Phí_bay")),
		AccountRent:      ParseAmount(r.first("Phí thuê TK", "Thuê TK", "Thuê_TK")),
		ShippingFee:      ParseAmount(r.first("Ship", "Phí_ship")),
		ReconciledVND:    ParseAmount(r.first("Tiền đã đối soát", "Tiền_Việt_đã_đối_soát")),
		AccountantNote:   r.first("KT xác nhận", "Kế_toán_xác_nhận_thu_tiền_về"),
		TotalVND:         ParseAmount(r.first("Tổng tiền VNĐ", "Tổng_tiền_VNĐ")),
		DeliveryStatus:   r.first("Trạng thái cuối cùng", "Trạng_thái_giao_hàng_NB"),
		Team:             r.first("Team", "Chi nhánh"),
		Note:             r.first("Ghi chú", "Ghi_chú"),
		PaymentMethod:    r.first("Hình thức thanh toán", "Hình_thức_thanh_toán"),
		CheckResult:      r.first("Kết quả Check", "Kết_quả_Check"),
		Reason:           r.first("Lý do", "Lý_do"),
		TrackingCode:     r.first("Mã Tracking", "Mã_Tracking"),
		ShippingClerk:    r.first("NV Vận đơn", "NV_Vận_đơn"),
		MarketingStaff:   r.first("Nhân viên Marketing", "Nhân_viên_Marketing"),
		CutoffTime:       r.first("Thời gian cutoff", "Thời_gian_cutoff"),
		CollectionStatus: r.first("Trạng thái thu tiền", "Trạng_thái_thu_tiền"),
		Carrier:          r.first("Đơn vị vận chuyển", "Đơn_vị_vận_chuyển"),
	}
	return o, o.OrderCode != ""
}
