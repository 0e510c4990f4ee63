package email

import (
	"fmt"
	"html"
)

// BuildOrderUpdateBody renders the HTML body for an order status mail. Both
// arguments are escaped.
func BuildOrderUpdateBody(orderID, text string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-radius: 10px;">
		<p style="margin-top: 0;">%s</p>
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This message was sent automatically.</p>
	</div>
</body>
</html>`, html.EscapeString(text), html.EscapeString(orderID))
}
