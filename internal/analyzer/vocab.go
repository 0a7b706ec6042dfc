package analyzer

// Word lists driving the heuristics. Everything here is ordered so that
// iteration is deterministic.

var nameStopwords = toSet(
	// function words and pronouns that start sentences
	"The", "A", "An", "He", "She", "They", "It", "His", "Her", "Hers", "Their", "Them",
	"We", "I", "You", "Your", "Our", "My", "Me", "Us", "But", "And", "Or", "So", "Yet",
	"This", "That", "These", "Those", "There", "Here", "What", "Where", "Who", "Why",
	"How", "Which", "When", "While", "If", "As", "In", "On", "At", "Into", "With",
	"From", "To", "For", "Of", "By", "Not", "No", "Yes", "Oh", "Ah", "Hey", "Okay",
	"Everyone", "Someone", "Nobody", "Everybody", "Anyone", "Something", "Nothing",
	"All", "Both", "Each", "Every", "Some", "Many", "Most", "One", "Two", "Three",
	"Its", "Let", "Just", "Still", "Even", "Only", "Maybe", "Perhaps", "Please",
	// temporal connectives
	"Then", "Now", "After", "Before", "Later", "Soon", "Meanwhile", "Suddenly",
	"Finally", "Once", "Again", "Today", "Tonight", "Tomorrow", "Yesterday",
	"Morning", "Afternoon", "Evening", "Night", "Moments", "Hours", "Days",
	// honorifics and titles
	"Mr", "Mrs", "Ms", "Miss", "Dr", "Sir", "Madam", "Lord", "Lady", "Master",
	"Mister", "Professor", "Captain", "Officer", "Uncle", "Aunt", "Auntie", "Ji",
	// calendar
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"January", "February", "March", "April", "May", "June", "July", "August",
	"September", "October", "November", "December",
	// screenplay furniture
	"Chapter", "Scene", "Act", "Part", "Int", "Ext", "Cut", "Fade", "End", "Title",
	"God", "Heaven",
)

// A parenthetical or narrative description counts as a character
// description only when it mentions one of these.
var embodimentKeywords = []string{
	"year-old", "years old", "year old", "aged", "age",
	"man", "woman", "boy", "girl", "child", "lady", "gentleman", "person",
	"tall", "short", "slim", "slender", "muscular", "build", "body", "stocky",
	"face", "skin", "complexion", "eyes", "eye", "hair", "beard", "mustache",
	"moustache", "wearing", "wears", "dressed", "shirt", "coat", "jacket",
	"dress", "saree", "sari", "kurta", "jeans", "suit", "uniform",
}

var attributionVerbs = []string{
	"said", "asked", "replied", "shouted", "whispered", "answered", "exclaimed",
	"muttered", "laughed", "smiled", "nodded", "sighed", "cried", "yelled",
	"walked", "looked", "ran", "turned", "stood", "sat", "entered", "stepped",
	"glanced", "stared", "grabbed", "opened", "reached", "paused", "leaned",
	"frowned", "shrugged", "waved", "pointed", "watched",
}

var maleWords = []string{
	"he", "him", "his", "himself", "man", "men", "boy", "male", "gentleman",
	"father", "husband", "son", "brother", "king", "uncle", "guy", "mr",
}

var femaleWords = []string{
	"she", "her", "hers", "herself", "woman", "women", "girl", "female", "lady",
	"mother", "wife", "daughter", "sister", "queen", "aunt", "mrs", "ms", "miss",
}

var nameGender = map[string]string{
	"sara": "female", "sarah": "female", "maya": "female", "priya": "female",
	"anita": "female", "emma": "female", "olivia": "female", "sophia": "female",
	"aisha": "female", "meera": "female", "riya": "female", "anna": "female",
	"maria": "female", "lisa": "female", "neha": "female", "pooja": "female",
	"john": "male", "raj": "male", "rahul": "male", "arjun": "male",
	"ravi": "male", "amit": "male", "james": "male", "michael": "male",
	"david": "male", "vikram": "male", "karan": "male", "omar": "male",
	"ali": "male", "tom": "male", "peter": "male", "sam": "male",
}

var nationalities = []string{
	"indian", "american", "british", "english", "french", "german", "italian",
	"spanish", "japanese", "chinese", "korean", "african", "nigerian",
	"mexican", "brazilian", "russian", "canadian", "australian", "pakistani",
	"bangladeshi", "nepali", "arab", "egyptian", "turkish", "irish", "scottish",
}

var (
	hairColors  = toSet("black", "brown", "blonde", "blond", "red", "auburn", "gray", "grey", "white", "silver", "dark", "golden", "ginger", "salt-and-pepper", "chestnut", "jet-black", "raven")
	hairLengths = toSet("short", "long", "shoulder-length", "medium-length", "cropped", "waist-length", "chin-length", "buzzed", "shaved")
	hairStyles  = toSet("curly", "wavy", "straight", "braided", "messy", "neat", "spiky", "slicked-back", "tied", "tousled", "wild", "thick", "thin", "flowing", "oiled", "combed")
	eyeColors   = toSet("green", "blue", "brown", "hazel", "grey", "gray", "black", "amber", "dark", "light")
)

var buildWords = []string{
	"slim", "slender", "muscular", "athletic", "stocky", "heavyset", "thin",
	"lean", "broad-shouldered", "chubby", "plump", "curvy", "wiry", "well-built",
	"skinny", "petite", "burly", "lanky",
}

var accessoryWords = []string{
	"sunglasses", "glasses", "spectacles", "earrings", "necklace", "bracelet",
	"watch", "ring", "scarf", "hat", "cap", "turban", "backpack", "bag", "bindi",
	"bangles", "headphones", "shawl",
}

var personalityWords = []string{
	"kind", "gentle", "fierce", "brave", "shy", "confident", "cheerful",
	"serious", "quiet", "loud", "witty", "stubborn", "curious", "ambitious",
	"humble", "proud", "nervous", "calm", "energetic", "mysterious", "friendly",
	"grumpy", "loyal", "honest", "cunning", "playful", "determined",
}

var demeanorWords = []string{
	"calm", "nervous", "anxious", "relaxed", "composed", "tense", "confident",
	"cheerful", "somber", "stern", "tired", "weary", "alert", "gentle",
}

var attitudeWords = []string{
	"friendly", "hostile", "arrogant", "humble", "warm", "cold", "playful",
	"aloof", "defiant", "respectful", "rude", "polite", "dismissive",
}

// characterTail is appended to every synthesized character description.
var characterTail = []string{
	"photorealistic",
	"highly detailed",
	"natural skin texture",
	"consistent facial features",
	"cinematic lighting",
	"8k resolution",
}

type locationCategory struct {
	name  string
	words []string
}

var locationCategories = []locationCategory{
	{"food", []string{"restaurant", "cafe", "café", "dhaba", "diner", "bar", "pub", "bakery", "canteen", "stall", "eatery", "bistro", "tavern", "teahouse", "kitchen"}},
	{"indoor", []string{"room", "bedroom", "office", "hall", "hallway", "corridor", "apartment", "house", "library", "classroom", "studio", "basement", "attic", "garage", "warehouse", "church", "temple", "mosque", "hospital", "museum", "palace", "castle", "cabin", "hotel", "lobby", "bathroom", "flat", "mansion", "cottage"}},
	{"outdoor", []string{"beach", "forest", "park", "garden", "street", "road", "highway", "mountain", "hill", "river", "lake", "ocean", "sea", "desert", "field", "village", "valley", "jungle", "bridge", "rooftop", "alley", "courtyard", "farm", "meadow", "cliff", "shore", "harbor", "island", "roadside", "riverbank", "lane"}},
	{"public", []string{"station", "airport", "market", "bazaar", "mall", "square", "school", "college", "university", "plaza", "platform", "terminal", "shop", "store", "court", "ghat"}},
	{"entertainment", []string{"theater", "theatre", "cinema", "stadium", "club", "arena", "casino", "circus", "carnival", "fair", "gym", "nightclub", "ballroom"}},
}

var locationIndex = buildLocationIndex()

func buildLocationIndex() map[string]string {
	idx := make(map[string]string)
	for _, c := range locationCategories {
		for _, w := range c.words {
			if _, ok := idx[w]; !ok {
				idx[w] = c.name
			}
		}
	}
	return idx
}

var cities = []string{
	"Mumbai", "Delhi", "Bangalore", "Bengaluru", "Kolkata", "Chennai", "Hyderabad",
	"Pune", "Jaipur", "Goa", "Lucknow", "Varanasi", "Amritsar", "London", "Paris",
	"Tokyo", "New York", "Los Angeles", "Dubai", "Singapore", "Sydney", "Berlin",
	"Rome", "Moscow", "Beijing", "Shanghai", "Toronto", "Chicago", "Dhaka",
	"Karachi", "Lahore", "Istanbul", "Cairo", "Bangkok", "Seoul", "Madrid",
	"Barcelona", "Amsterdam", "Venice", "Kathmandu",
}

var locationPrepositions = toSet(
	"in", "at", "on", "into", "inside", "near", "through", "to", "towards",
	"toward", "outside", "across", "from", "within", "of", "by", "behind",
	"beside", "past", "around", "onto", "under",
)

// phraseBreakers end a captured "in the X" phrase.
var phraseBreakers = toSet(
	"the", "a", "an", "of", "and", "or", "with", "where", "which", "who", "that", "as", "while",
	"for", "to", "from", "in", "on", "at", "by", "but", "when", "then", "is",
	"was", "were", "are", "had", "has",
)

var (
	indoorKeywords  = []string{"room", "wall", "walls", "ceiling", "inside", "indoor", "indoors", "table", "window", "door", "floor", "counter", "corridor", "lamp", "sofa", "bed"}
	outdoorKeywords = []string{"sky", "outside", "outdoor", "outdoors", "street", "road", "tree", "trees", "sun", "wind", "field", "grass", "beach", "highway", "horizon", "clouds", "open air"}
)

var sizeWords = []string{"tiny", "small", "cramped", "cozy", "large", "huge", "vast", "spacious", "massive", "narrow", "wide", "grand", "sprawling"}

var lightingPhrases = []string{
	"golden hour", "candlelit", "candle-lit", "sunlit", "moonlit", "neon", "fluorescent",
	"dim", "bright", "harsh", "soft light", "warm light", "flickering", "lantern",
	"shadowy", "glowing", "backlit", "streetlights",
}

var weatherPhrases = []string{
	"raining", "rainy", "rain", "drizzle", "drizzling", "snowing", "snowy", "snow",
	"foggy", "fog", "misty", "mist", "stormy", "storm", "thunder", "sunny", "cloudy",
	"overcast", "windy", "humid", "clear sky",
}

type timeBucket struct {
	label string
	words []string
}

// Order is priority: the first bucket with any hit wins.
var timeBuckets = []timeBucket{
	{"morning", []string{"morning", "dawn", "sunrise", "daybreak"}},
	{"afternoon", []string{"afternoon", "noon", "midday"}},
	{"evening", []string{"evening", "dusk", "sunset", "twilight"}},
	{"night", []string{"night", "midnight", "nighttime"}},
}

var seasonWords = []string{"spring", "summer", "autumn", "fall", "winter", "monsoon"}

var colorWords = []string{
	"red", "orange", "yellow", "green", "blue", "purple", "pink", "brown", "black",
	"white", "gray", "grey", "golden", "silver", "crimson", "amber", "turquoise",
	"beige", "maroon", "teal",
}

var atmosphereWords = []string{
	"busy", "crowded", "quiet", "peaceful", "chaotic", "lively", "tense",
	"romantic", "eerie", "cozy", "bustling", "serene", "deserted", "festive",
	"noisy", "calm", "smoky", "dusty",
}

var soundWords = []string{
	"music", "chatter", "traffic", "honking", "birds", "silence", "laughter",
	"clinking", "sizzling", "footsteps", "wind", "thunder", "bells", "engines",
	"shouting", "whistling",
}

var moodWords = []string{
	"joyful", "melancholic", "mysterious", "tense", "romantic", "nostalgic",
	"hopeful", "gloomy", "cheerful", "ominous", "calm", "warm", "somber",
}

var activityWords = []string{
	"cooking", "eating", "dancing", "talking", "walking", "driving", "shopping",
	"working", "drinking", "playing", "waiting", "reading", "singing", "running",
	"serving", "selling",
}

// environmentTail is appended to every synthesized environment description.
var environmentTail = []string{
	"photorealistic environment",
	"consistent architecture",
	"stable background details",
}

const (
	generalSceneName    = "General Scene"
	generalSceneContent = "a coherent, realistic background setting with stable composition and consistent props, photorealistic environment, consistent architecture, stable background details"
)

func toSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}
