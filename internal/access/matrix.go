// Package access реализует статическую матрицу прав админ-панели.
// Матрица — чистая детерминированная функция без состояния: уровень доступа
// и страница на входе, решение на выходе. Пустой или неизвестный уровень
// не даёт доступа ни к одной странице.
package access

import (
	"fmt"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// Page страница админ-панели из конечного набора.
type Page string

const (
	// PageDashboard сводная панель.
	PageDashboard Page = "dashboard"
	// PageUsers управление пользователями.
	PageUsers Page = "users"
	// PageBilling платежи и подписки.
	PageBilling Page = "billing"
	// PageContent управление контентом.
	PageContent Page = "content"
	// PageSettings настройки сервиса.
	PageSettings Page = "settings"
)

// matrix задаёт для каждой страницы минимальный ранг уровня, достаточный
// для доступа. Минимальный уровень вычисляется из полного порядка уровней,
// а не из позиции в списке — порядок списков здесь ничем не гарантирован.
var matrix = map[Page]int{
	PageDashboard: models.AccessLimited.Rank(),
	PageContent:   models.AccessLimited.Rank(),
	PageUsers:     models.AccessPartial.Rank(),
	PageBilling:   models.AccessPartial.Rank(),
	PageSettings:  models.AccessFull.Rank(),
}

// Pages возвращает полный набор страниц матрицы.
func Pages() []Page {
	return []Page{PageDashboard, PageUsers, PageBilling, PageContent, PageSettings}
}

// CanAccess сообщает, достаточно ли уровня level для страницы page.
// Неизвестная страница и нулевой ранг всегда дают отказ.
func CanAccess(level models.AccessLevel, page Page) bool {
	need, ok := matrix[page]
	if !ok {
		return false
	}
	return level.Rank() >= need
}

// MinimumLevelFor возвращает минимальный достаточный уровень для страницы.
func MinimumLevelFor(page Page) (models.AccessLevel, bool) {
	need, ok := matrix[page]
	if !ok {
		return "", false
	}
	for _, l := range []models.AccessLevel{models.AccessLimited, models.AccessPartial, models.AccessFull} {
		if l.Rank() >= need {
			return l, true
		}
	}
	return "", false
}

// UnauthorizedMessage формирует сообщение об отказе с указанием минимального
// требуемого уровня для страницы.
func UnauthorizedMessage(level models.AccessLevel, page Page) string {
	required, ok := MinimumLevelFor(page)
	if !ok {
		return fmt.Sprintf("page %q does not exist", page)
	}
	return fmt.Sprintf("access denied: page %q requires %s, your level is %s",
		page, required.Label(), level.Label())
}
