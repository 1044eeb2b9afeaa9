package constants

// ReceiptExt is the extension of every stored receipt document.
const ReceiptExt = "pdf"

// ReceiptDateLayout names one receipt per calendar day per contract.
const ReceiptDateLayout = "2006-01-02"

// PointerFile holds the per-contract record of the last saved receipt.
const PointerFile = "last.json"

// ReceiptFilename returns the stored name for a receipt fetched on the given day.
func ReceiptFilename(day string) string {
	return day + "." + ReceiptExt
}
