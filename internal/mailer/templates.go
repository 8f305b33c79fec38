package mailer

// Template pairs an email subject and body. Bodies use Liquid
// placeholders ({{ user_name }}); the renderer refuses to emit a
// message while any placeholder is unbound.
type Template struct {
	Subject string
	Body    string
}

// Template names used by the decision engine and the supervision
// service. Rejections are keyed by reason code so each failure mode
// gets its own wording.
const (
	TemplateApproval      = "approval"
	TemplateClarification = "clarification"
	TemplateRejection     = "rejection_" // prefix, completed with a reason code
)

// templates is the built-in template set. The wording is customer
// facing and intentionally in Spanish, matching the community the
// service mails.
var templates = map[string]Template{
	TemplateApproval: {
		Subject: "✅ ¡Tu descuento para {{ show_title }} fue aprobado!",
		Body: `¡Hola {{ user_name }}!

Buenas noticias: tu solicitud de descuento para {{ show_title }} ({{ show_artist }} en {{ show_venue }}, {{ show_date }}) fue aprobada.

Seguí estos pasos:
{{ discount_details }}

Código de descuento: {{ discount_code }}
Válido hasta: {{ expiry_date }}

Presentá este email en la boletería para hacerlo válido. ¡Que lo disfrutes!

- El equipo de IndieHOY`,
	},
	TemplateClarification: {
		Subject: "🤔 Necesitamos más información sobre tu solicitud",
		Body: `Hola {{ user_name }},

Recibimos tu solicitud de descuento para "{{ show_query }}".

Encontramos varios shows que podrían coincidir con tu búsqueda:

{{ candidates }}

Respondé a este email indicando cuál de estos shows es el que querés, así podemos procesar tu solicitud.

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "user_not_found": {
		Subject: "❌ Solicitud de descuento - Usuario no encontrado",
		Body: `Hola {{ user_name }},

No pudimos procesar tu solicitud porque el email {{ user_email }} no está registrado en nuestro sistema.

Si creés que se trata de un error, escribinos respondiendo a este email.

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "subscription_inactive": {
		Subject: "❌ Solicitud de descuento - Suscripción inactiva",
		Body: `Hola {{ user_name }},

Tu suscripción no está activa. Activá tu suscripción para volver a solicitar descuentos.

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "payment_overdue": {
		Subject: "❌ Solicitud de descuento - Cuotas pendientes",
		Body: `Hola {{ user_name }},

Tenés cuotas mensuales pendientes. Regularizá tu situación de pagos para acceder a descuentos.

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "duplicate_recent_request": {
		Subject: "❌ Solicitud de descuento - Solicitud reciente en curso",
		Body: `Hola {{ user_name }},

Ya tenés una solicitud de descuento reciente en curso. Esperá la respuesta antes de solicitar nuevamente.

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "show_not_found": {
		Subject: "❌ No encontramos el show que buscás",
		Body: `Hola {{ user_name }},

Recibimos tu solicitud de descuento para "{{ show_query }}", pero no encontramos un show que coincida con tu búsqueda.

Por favor:
• Verificá la escritura del nombre del artista o show
• Asegurate de que el show tenga fecha próxima
• Respondé a este email con más detalles

Saludos,
El equipo de IndieHOY`,
	},
	TemplateRejection + "quota_exhausted": {
		Subject: "❌ Sin descuentos disponibles - {{ show_title }}",
		Body: `Hola {{ user_name }},

Encontramos el show que buscás ({{ show_title }} - {{ show_artist }} en {{ show_venue }}), pero lamentablemente ya no quedan descuentos disponibles para esa fecha.

Te avisaremos si se liberan nuevos cupos.

Saludos,
El equipo de IndieHOY`,
	},
}

// Lookup returns the named template. The second return is false for
// unknown names, which callers must treat as a construction error.
func Lookup(name string) (Template, bool) {
	t, ok := templates[name]
	return t, ok
}
