package registry

import "fmt"

const (
	xpOperatorInput = "//*[@id='ContentPlaceHolder1_txt_oper']"
	xpPeriodInput   = "//*[@id='ContentPlaceHolder1_Txt_fdpdtno']"
	xpSearchButton  = "//*[@id='ContentPlaceHolder1_btn_sea_cmt']"

	xpGridBody   = "//table[contains(@class,'rgMasterTable')]/tbody"
	xpRows       = "//table[contains(@class,'rgMasterTable')]/tbody/tr[count(td)>=2]"
	xpNoRecords  = "//td[contains(.,'No records to display')]"
	xpValidation = "//*[contains(@class,'validation') or contains(@class,'validator') or contains(@class,'error')]"

	xpPageIndex = "//input[contains(@class,'rgCurrentPage')]"
	xpNextInput = "//input[contains(@class,'rgPageNext') and not(@disabled)]"
	xpNextLink  = "//a[contains(@class,'rgPageNext') and not(contains(@class,'rgDisabled'))]"

	xpDetailNumber = "//*[@id='ContentPlaceHolder1_lb_no_regnos']"
	xpDetailStatus = "//*[@id='ContentPlaceHolder1_lb_status']"

	viewDataLabel = "ดูข้อมูล"
)

// The trade-name field has had two ids over time.
var xpBrandInputs = []string{
	"//*[@id='ContentPlaceHolder1_txt_trade']",
	"//*[@id='ContentPlaceHolder1_txt_tradename']",
}

func rowXPath(i int) string {
	return fmt.Sprintf("(%s)[%d]", xpRows, i)
}

func rowLinkXPath(i int) string {
	return rowXPath(i) + "//a[contains(@href,'__doPostBack') and contains(.,'" + viewDataLabel + "')]"
}
