// Package prompts holds the fixed texts of the legal assistant: the system instruction sent to the
// completion service, the greeting and apology replies, and the catalog of canned prompt templates
// offered in the sidebar.
package prompts

import (
	"errors"
	"fmt"
)

// Template is a canned prompt prefix shown in the sidebar. Selecting it prefills the input box with
// Prompt.
type Template struct {
	Title       string
	Description string
	Icon        string
	Prompt      string
}

// ErrTemplateNotFound is returned by Lookup for an index outside the catalog.
var ErrTemplateNotFound = errors.New("template not found")

const (
	// SystemInstruction directs the model to ground answers on web search, answer in Russian, structure
	// the reply and disclose that it is not an authoritative legal opinion.
	SystemInstruction = `Вы — ArmLegal AI Ассистент, высококвалифицированный цифровой юридический консультант.
Ваша цель — предоставлять точную, профессиональную и глубоко проработанную юридическую информацию на РУССКОМ языке.
ВСЕГДА используйте инструмент Google Search для проверки актуальных законов, последних судебных дел и нормативных актов.
Структурируйте свои ответы профессионально: используйте заголовки, маркированные списки и четкие разделы.
Различайте общие юридические принципы и конкретную судебную практику.
ВСЕГДА ссылайтесь на свои источники, используя предоставленную информацию о заземлении (grounding).
Дисклеймер: четко заявляйте, что вы являетесь ИИ-помощником и ваши ответы не являются официальной юридической консультацией.`

	// Welcome is the assistant greeting every session starts with.
	Welcome = "Добро пожаловать в ArmLegal AI Ассистент. Я ваш специализированный цифровой консультант, " +
		"обладающий возможностью поиска правовой информации в реальном времени. Чем я могу помочь вам " +
		"в ваших юридических исследованиях или подготовке документов сегодня?"

	// ErrorReply replaces the pending placeholder when the completion service call fails.
	ErrorReply = "Произошла ошибка при обработке вашего юридического запроса. " +
		"Пожалуйста, убедитесь в правильности настроек и попробуйте снова."

	// EmptyReply is returned by adapters when the upstream response carries no text.
	EmptyReply = "Приношу извинения, возникла ошибка при обработке вашего запроса."
)

var catalog = []Template{
	{
		Title:       "Анализ договора",
		Description: "Анализ условий и рисков",
		Icon:        "fa-file-signature",
		Prompt:      "Проанализируйте следующие условия договора на предмет потенциальных рисков и предложите улучшения: ",
	},
	{
		Title:       "Поиск прецедентов",
		Description: "Поиск судебной практики",
		Icon:        "fa-gavel",
		Prompt:      "Найдите недавние юридические прецеденты и судебные решения, связанные с: ",
	},
	{
		Title:       "Поиск законов",
		Description: "Поиск конкретных актов",
		Icon:        "fa-book-legal",
		Prompt:      "Найдите и объясните действующие законы и нормативные акты, регулирующие: ",
	},
	{
		Title:       "Помощь в составлении",
		Description: "Создание юридических формулировок",
		Icon:        "fa-pen-nib",
		Prompt:      "Помогите мне составить стандартную юридическую оговорку для: ",
	},
}

// Templates returns a copy of the template catalog in display order.
func Templates() []Template {
	res := make([]Template, len(catalog))
	copy(res, catalog)
	return res
}

// Lookup returns the template at index.
func Lookup(index int) (Template, error) {
	if index < 0 || index >= len(catalog) {
		return Template{}, fmt.Errorf("%w: index %d", ErrTemplateNotFound, index)
	}
	return catalog[index], nil
}
