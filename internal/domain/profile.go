package domain

// VendorProfile — конфигурация конкретного портала поставщика.
//
// Загружается read-only при диспетчеризации задачи и пробрасывается
// воркеру в дескрипторе. Отсутствие профиля означает generic.
type VendorProfile struct {
	// Key — ключ профиля (совпадает с Task.ProfileKey).
	Key string `json:"key"`

	// Name — отображаемое имя портала.
	Name string `json:"name"`

	// URLPattern — подстрока URL, по которой профиль подбирается
	// автоматически, если ProfileKey не задан.
	URLPattern string `json:"url_pattern,omitempty"`

	// Locators — упорядоченные fallback-селекторы по логическим полям.
	// Обычно 3 записи на поле; перебираются по порядку.
	Locators map[string][]string `json:"locators"`

	// FieldAliases — альтернативные имена полей для визуального поиска
	// по label/placeholder (rfc → "rfc", "RFC", "r.f.c", ...).
	FieldAliases map[string][]string `json:"field_aliases,omitempty"`

	// AuthSteps — шаги аутентификации портала до заполнения формы.
	AuthSteps []AuthStep `json:"auth_steps,omitempty"`

	// SuccessPatterns — регулярные выражения маркеров успеха.
	SuccessPatterns []string `json:"success_patterns,omitempty"`

	// ErrorPatterns — регулярные выражения маркеров ошибки.
	ErrorPatterns []string `json:"error_patterns,omitempty"`

	// MaxRetryOverride — переопределение лимита повторов для политики
	// восстановления. 0 — использовать значение по умолчанию.
	MaxRetryOverride map[ErrorKind]int `json:"max_retry_override,omitempty"`

	// SpecialFlags — флаги особых случаев ("slow_portal", "no_drag_drop").
	SpecialFlags map[string]bool `json:"special_flags,omitempty"`
}

// AuthStep — один шаг аутентификации vendor-портала.
type AuthStep struct {
	Action   string `json:"action"` // "navigate", "fill", "click"
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
}

// HasFlag проверяет особый флаг профиля.
func (p *VendorProfile) HasFlag(name string) bool {
	return p != nil && p.SpecialFlags[name]
}

// RetryLimit возвращает переопределённый лимит повторов для вида ошибки
// либо def, если переопределения нет.
func (p *VendorProfile) RetryLimit(kind ErrorKind, def int) int {
	if p == nil {
		return def
	}
	if n, ok := p.MaxRetryOverride[kind]; ok && n > 0 {
		return n
	}
	return def
}

// GenericProfile возвращает профиль по умолчанию для неизвестных порталов.
//
// Селекторы и паттерны перенесены из продуктовой конфигурации CFDI:
// типовые поля счёта (RFC, nombre, email, subtotal, IVA, total) и
// испаноязычные маркеры успеха/ошибки.
func GenericProfile() *VendorProfile {
	return &VendorProfile{
		Key:  "generic",
		Name: "Generic CFDI Portal",
		Locators: map[string][]string{
			"rfc":      {"#rfc", "[name='rfc']", "[placeholder*='RFC']"},
			"nombre":   {"#nombre", "[name='nombre']", "[placeholder*='nombre']"},
			"email":    {"#email", "[name='email']", "[type='email']"},
			"telefono": {"#telefono", "[name='telefono']", "[name='tel']"},
			"subtotal": {"#subtotal", "[name='subtotal']", ".subtotal-input"},
			"iva":      {"#iva", "[name='iva']", "[placeholder*='IVA']"},
			"total":    {"#total", "[name='total']", ".total-input"},
			"xml":      {"#xml", "[accept*='.xml']", "[type='file']"},
			"pdf":      {"#pdf", "[accept*='.pdf']", "[type='file']"},
			"submit":   {"#enviar", "[type='submit']", ".btn-enviar"},
		},
		FieldAliases: map[string][]string{
			"rfc":      {"rfc", "r.f.c", "registro federal"},
			"nombre":   {"nombre", "razon social", "razón social", "cliente", "receptor"},
			"email":    {"email", "correo", "mail", "correo electronico", "correo electrónico"},
			"telefono": {"telefono", "teléfono", "tel", "celular"},
			"subtotal": {"subtotal", "importe", "base"},
			"iva":      {"iva", "impuesto", "tax", "ieps"},
			"total":    {"total", "importe total", "monto total"},
		},
		SuccessPatterns: []string{
			`Factura\s+enviada`,
			`Estado:\s*Recibido`,
			`CFDI\s+procesado`,
			`Timbrado\s+exitoso`,
			`Facturación\s+completada`,
			`Documento\s+fiscal\s+generado`,
			`Upload\s+success`,
		},
		ErrorPatterns: []string{
			`Error\s+en\s+validación`,
			`RFC\s+inválido`,
			`Archivo\s+corrupto`,
			`Sesión\s+expirada`,
			`Captcha\s+requerido`,
			`Datos\s+incompletos`,
		},
	}
}
