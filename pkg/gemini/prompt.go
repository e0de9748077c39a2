package gemini

import (
	"fmt"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

const systemPrompt = `You read scanned supplier invoices and receipts.
Return ONLY JSON: an array with one element per page of the document, each element shaped as
{"output": {"<label>": "<value>", ...}}.
Use exactly these labels when the information is present on the page:
"Fournisseur", "Date", "Nom de l'entreprise", "Adresse", "Numéro de facture",
"Montant HT", "Montant TVA", "Montant TTC", "Détail".
Copy values verbatim as strings. Omit labels you cannot find. Do not invent values.
Return [] when the document is not an invoice.`

func userPrompt(doc *models.RawDocument) string {
	return fmt.Sprintf("File %q (%s, %d page(s)). Extract the invoice fields.", doc.FileName, doc.MediaType, doc.Pages)
}
