package flow

// Reply texts. Values interpolated into them are HTML-escaped first.
const (
	textAskName         = "👋 Welcome to our coffee shop! Please enter your name:"
	textAskNameAgain    = "Please enter your name:"
	textAskPhone        = "📱 Enter your phone number (for example +79991234567) or share your contact:"
	textSharePhone      = "Share phone number"
	textInvalidPhone    = "❌ Invalid phone number format. Please try again:"
	textRegistered      = "✅ Registration complete!"
	textWelcomeBack     = "☕ Welcome back!"
	textMainMenu        = "Main menu:"
	textAskTitle        = "Enter the promotion title:"
	textAskTitleAgain   = "The title cannot be empty. Enter the promotion title:"
	textAskDescription  = "Now enter the promotion description:"
	textPromotionAdded  = "✅ Promotion added!"
	textAdminPanel      = "⚙️ Admin panel:"
	textAskPhoneLookup  = "Enter the phone number:"
	textClientNotFound  = "❌ Client not found"
	textSearchResults   = "🔍 Results:\n\n"
	textAskDiscount     = "Enter the user ID and the discount (for example: 123456789 10):"
	textInvalidDiscount = "❌ Invalid format. Example: 123456789 10"
	textDiscountRange   = "❌ The discount must be between 0 and 100."
	textUserNotFound    = "❌ User not found"
	textDiscountSet     = "✅ User %s now has a %d%% discount"
	textSomethingWrong  = "⚠️ Something went wrong. Please try again later."
	searchResultFormat  = "👤 %s (ID: %s)\n📱 %s\n🎁 Discount: %d%%\n\n"
)
