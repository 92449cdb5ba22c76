// Package ynab is a thin client for the YNAB v1 API, covering categories and
// transaction creation. Amounts are milliunits on the wire.
package ynab

// types available at https://api.ynab.com/v1#/Transactions/createTransaction

// Category is one budget category.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupName string `json:"-"`
	Hidden    bool   `json:"hidden"`
	Deleted   bool   `json:"deleted"`
}

type categoriesResponse struct {
	Data struct {
		CategoryGroups []struct {
			Name       string     `json:"name"`
			Hidden     bool       `json:"hidden"`
			Deleted    bool       `json:"deleted"`
			Categories []Category `json:"categories"`
		} `json:"category_groups"`
	} `json:"data"`
}

type transactionsPayload struct {
	Transactions []transactionPayload `json:"transactions"`
}

type transactionPayload struct {
	AccountID       string           `json:"account_id"`
	Date            string           `json:"date"`   // YYYY-MM-DD
	Amount          int64            `json:"amount"` // milliunits
	PayeeName       string           `json:"payee_name,omitempty"`
	CategoryID      string           `json:"category_id,omitempty"`
	Memo            string           `json:"memo,omitempty"`
	Cleared         string           `json:"cleared"`
	Approved        bool             `json:"approved"`
	SubTransactions []subTransaction `json:"subtransactions,omitempty"`
	ImportID        string           `json:"import_id,omitempty"`
}

type subTransaction struct {
	Amount     int64  `json:"amount"`
	CategoryID string `json:"category_id,omitempty"`
	Memo       string `json:"memo,omitempty"`
}

type transactionsResponse struct {
	Data struct {
		TransactionIDs     []string `json:"transaction_ids"`
		DuplicateImportIDs []string `json:"duplicate_import_ids"`
		Transactions       []struct {
			ID       string `json:"id"`
			ImportID string `json:"import_id"`
		} `json:"transactions"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}
