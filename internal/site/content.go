package site

// Service はメモリアルサービスの紹介カード。
type Service struct {
	Title       string
	Description string
	Features    []string
	Details     string
}

// Step は「How It Works」の1手順。
type Step struct {
	Number      int
	Title       string
	Description string
}

// Highlight は見出しと説明だけのカード（Our Promise / Why Choose）。
type Highlight struct {
	Title       string
	Description string
}

// PolicySection はプライバシーポリシーの1節。
type PolicySection struct {
	Heading string
	Intro   string
	Items   []string
}

// Content はトップページの固定コンテンツ。
type Content struct {
	Tagline  string
	Services []Service
	Steps    []Step
	Promises []Highlight
	Benefits []Highlight
	Privacy  []PolicySection
}

// DefaultContent はトップページに表示する文言を返す。
func DefaultContent() Content {
	return Content{
		Tagline:  "Providing dignified and compassionate memorial services for your beloved companions with grace and respect.",
		Services: services,
		Steps:    steps,
		Promises: promises,
		Benefits: benefits,
		Privacy:  privacyPolicy,
	}
}

var services = []Service{
	{
		Title:       "Private Memorial",
		Description: "An intimate farewell ceremony in our serene memorial hall, personalized to honor your beloved companion's unique spirit.",
		Features:    []string{"2-3 hours duration", "Up to 30 guests", "Personalized tribute"},
		Details:     "Our private memorial service offers a dignified and intimate setting to celebrate your pet's life. The ceremony includes personalized readings, photo tributes, and the option for attendees to share memories. Our compassionate staff will guide you through creating a meaningful ceremony that perfectly reflects your pet's personality and your family's wishes.",
	},
	{
		Title:       "Memorial Ceremonies",
		Description: "Beautiful ceremonies to celebrate your pet's life, including memorial services and tribute presentations.",
		Features:    []string{"Customized ceremony", "Professional celebrant", "Memorial keepsakes"},
		Details:     "Our memorial ceremonies are thoughtfully crafted to celebrate the unique bond you shared with your pet. Led by experienced celebrants, these ceremonies incorporate meaningful rituals, music, and shared memories. We offer various ceremony styles to match your preferences and beliefs.",
	},
	{
		Title:       "Home Services",
		Description: "Compassionate at-home memorial services for a peaceful farewell in familiar surroundings.",
		Features:    []string{"In-Home Care", "Flexible scheduling", "Private setting"},
		Details:     "Our home services bring the comfort and dignity of a memorial service to your personal space. Our experienced team will help transform your chosen area into a serene memorial setting, allowing your pet to be honored in the comfort of familiar surroundings. This option provides maximum privacy and flexibility for your family.",
	},
}

var steps = []Step{
	{Number: 1, Title: "Choose a Service", Description: "Browse our verified memorial service providers in your area and select the service that best honors your pet."},
	{Number: 2, Title: "Book the Service", Description: "Schedule the memorial service at your preferred time and location with our easy booking system."},
	{Number: 3, Title: "Personalize", Description: "Work with the provider to customize the memorial service according to your wishes and preferences."},
	{Number: 4, Title: "Say Goodbye", Description: "Experience a beautiful and dignified farewell ceremony for your beloved pet with full support."},
}

var promises = []Highlight{
	{Title: "With Honor", Description: "We ensure every farewell reflects the depth of love shared between you and your cherished companion, honoring their unique spirit."},
	{Title: "With Care", Description: "Our gentle approach provides comfort in difficult moments, offering environmentally mindful services that respect both memory and nature."},
	{Title: "With Love", Description: "Each pet receives the same loving care we would give to our own, because we understand the profound bond you shared."},
}

var benefits = []Highlight{
	{Title: "Verified Providers", Description: "All our service providers are thoroughly vetted and licensed professionals."},
	{Title: "Compassionate Care", Description: "Treating every pet with dignity and every family with understanding."},
	{Title: "Nationwide Service", Description: "Connected with providers across the Philippines for accessible care."},
}

var privacyPolicy = []PolicySection{
	{
		Heading: "1. Collection of Personal Information",
		Intro:   "We collect and process your personal information in accordance with the Data Privacy Act of 2012. This includes:",
		Items: []string{
			"Basic personal information (name, contact details)",
			"Government-issued IDs and business permits (for service providers)",
			"Account credentials",
			"Service transaction history",
		},
	},
	{
		Heading: "2. Purpose of Data Collection",
		Intro:   "Your personal information is collected and processed for:",
		Items: []string{
			"Account creation and management",
			"Service provider verification",
			"Facilitating pet cremation services",
			"Communication regarding our services",
			"Legal compliance and business operations",
		},
	},
	{
		Heading: "3. Your Rights Under the DPA",
		Intro:   "You have the following rights regarding your personal information:",
		Items: []string{
			"Right to be informed",
			"Right to access",
			"Right to object",
			"Right to erasure or blocking",
			"Right to damages",
			"Right to file a complaint",
		},
	},
	{
		Heading: "4. Data Protection Measures",
		Intro:   "We implement reasonable and appropriate organizational, physical, and technical security measures to protect your personal information.",
	},
	{
		Heading: "5. Data Sharing and Disclosure",
		Intro:   "We may share your information with:",
		Items: []string{
			"Verified pet cremation service providers",
			"Legal authorities when required by law",
			"Third-party service providers under strict confidentiality agreements",
		},
	},
	{
		Heading: "6. Data Retention",
		Intro:   "We retain your personal information for as long as necessary to fulfill the purposes for which it was collected, or as required by law.",
	},
	{
		Heading: "7. Updates to Privacy Policy",
		Intro:   "We may update this Privacy Policy periodically. Significant changes will be notified to you through our platform.",
	},
	{
		Heading: "8. Contact Information",
		Intro:   "For privacy concerns or to exercise your rights under the DPA, contact our Data Protection Officer at pawrest@gmail.com.",
	},
}
