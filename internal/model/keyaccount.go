package model

// KeyAccountValidation contains the result of launcher key+hwid validation.
type KeyAccountValidation struct {
	KeyAccountID int64
	KeyID        int64
	AccountID    string
	DisplayName  string
	HWID         string
	KeyStatus    string
}
