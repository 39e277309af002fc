package storage

type User struct {
	ID         string
	Email      string
	AccountRef string
	CreatedAt  string
}

type Transaction struct {
	UserID      string
	ID          string
	AccountRef  string
	Amount      string
	PostedOn    string
	Description string
	UpdatedAt   string
}
