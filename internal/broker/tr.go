package broker

// TR describes one transaction request: its code, the request name used to
// match the callback, a default screen number and the fields to read back.
type TR struct {
	Code     string
	RqName   string
	ScreenNo string
	Single   []string // fields read at index 0
	Multi    []string // fields read for every repeated row
}

// Input is one SetInputValue pair. Order matters to the broker.
type Input struct {
	ID    string
	Value string
}

// RecordSet is the raw result of a TR.
type RecordSet struct {
	TrCode string              `json:"tr_code"`
	Single map[string]string   `json:"single"`
	Rows   []map[string]string `json:"rows"`
}

// Known TRs.
var (
	// TRBalance is the account balance with per-holding rows.
	TRBalance = TR{
		Code: "opw00018", RqName: "opw00018_req", ScreenNo: "9200",
		Single: []string{"총매입금액", "총평가금액", "총평가손익금액", "총수익률(%)", "추정예탁자산"},
		Multi:  []string{"종목번호", "종목명", "보유수량", "매입가", "현재가", "평가손익", "수익률(%)"},
	}
	// TRCash is the orderable cash query.
	TRCash = TR{
		Code: "opw00001", RqName: "opw00001_req", ScreenNo: "9201",
		Single: []string{"주문가능금액", "예수금"},
	}
	// TRVolumeLeaders lists the day's top-volume instruments.
	TRVolumeLeaders = TR{
		Code: "opt10030", RqName: "opt10030_req", ScreenNo: "9202",
		Multi: []string{"종목코드", "종목명", "현재가", "등락률", "거래량"},
	}
	// TRUnfilled lists open orders.
	TRUnfilled = TR{
		Code: "opt10075", RqName: "opt10075_req", ScreenNo: "9203",
		Multi: []string{"주문번호", "종목코드", "종목명", "주문구분", "주문수량", "주문가격", "미체결수량", "시간"},
	}
	// TRDailyBars returns daily bars newest-first.
	TRDailyBars = TR{
		Code: "opt10081", RqName: "opt10081_req", ScreenNo: "9204",
		Multi: []string{"일자", "현재가", "고가", "저가", "거래량"},
	}
	// TRStockInfo is basic instrument information.
	TRStockInfo = TR{
		Code: "opt10001", RqName: "opt10001_req", ScreenNo: "9205",
		Single: []string{"종목명", "현재가", "등락율", "거래량", "시가총액", "PER"},
	}
)

// ScreenOrder is the screen number used for SendOrder.
const ScreenOrder = "9300"

// AccountInputs are the inputs shared by the account TRs.
func AccountInputs(account, password string) []Input {
	return []Input{
		{"계좌번호", account},
		{"비밀번호", password},
		{"비밀번호입력매체구분", "00"},
		{"조회구분", "2"},
	}
}
