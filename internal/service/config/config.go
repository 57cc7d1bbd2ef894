package config

type Config struct {
	// Подключение к Mural API
	MuralAddr           string
	MuralAPIKey         string
	MuralTransferAPIKey string

	// Операционные параметры. Пустые значения допустимы:
	// без AccountID не работает опрос транзакций,
	// без CounterpartyID/PayoutMethodID не выполняются выплаты
	AccountID      string
	CounterpartyID string
	PayoutMethodID string

	// Адрес для депозита USDC, показывается покупателю
	DepositAddress string
}
