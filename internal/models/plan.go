package models

// FreePlanID идентификатор бесплатного тарифа — базовое состояние аккаунта
// без платёжных отношений.
const FreePlanID = "free"

// Plan описывает тариф из статического каталога.
// StripePriceID пуст для бесплатного тарифа.
type Plan struct {
	ID            string
	Name          string
	StripePriceID string
}

// PlanCatalog статический каталог тарифов. Идентификаторы цен должны
// соответствовать объектам price в кабинете биллинг-провайдера.
var PlanCatalog = []Plan{
	{ID: FreePlanID, Name: "Free"},
	{ID: "pro", Name: "Pro", StripePriceID: "price_pro_monthly"},
	{ID: "business", Name: "Business", StripePriceID: "price_business_monthly"},
}

// PlanByID возвращает тариф по идентификатору.
func PlanByID(id string) (Plan, bool) {
	for _, p := range PlanCatalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanByPriceID возвращает тариф по идентификатору цены биллинг-провайдера.
// Используется реконсилятором для маппинга вебхук-событий на каталог.
func PlanByPriceID(priceID string) (Plan, bool) {
	for _, p := range PlanCatalog {
		if p.StripePriceID != "" && p.StripePriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}
