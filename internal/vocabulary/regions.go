package vocabulary

// countryRegions maps ISO 3166-1 alpha-2 codes to the GBIF region grouping.
var countryRegions = map[string]string{
	// Africa
	"AO": "AFRICA",
	"BF": "AFRICA",
	"BI": "AFRICA",
	"BJ": "AFRICA",
	"BW": "AFRICA",
	"CD": "AFRICA",
	"CF": "AFRICA",
	"CG": "AFRICA",
	"CI": "AFRICA",
	"CM": "AFRICA",
	"CV": "AFRICA",
	"DJ": "AFRICA",
	"DZ": "AFRICA",
	"EG": "AFRICA",
	"EH": "AFRICA",
	"ER": "AFRICA",
	"ET": "AFRICA",
	"GA": "AFRICA",
	"GH": "AFRICA",
	"GM": "AFRICA",
	"GN": "AFRICA",
	"GQ": "AFRICA",
	"GW": "AFRICA",
	"KE": "AFRICA",
	"KM": "AFRICA",
	"LR": "AFRICA",
	"LS": "AFRICA",
	"LY": "AFRICA",
	"MA": "AFRICA",
	"MG": "AFRICA",
	"ML": "AFRICA",
	"MR": "AFRICA",
	"MU": "AFRICA",
	"MW": "AFRICA",
	"MZ": "AFRICA",
	"NA": "AFRICA",
	"NE": "AFRICA",
	"NG": "AFRICA",
	"RE": "AFRICA",
	"RW": "AFRICA",
	"SC": "AFRICA",
	"SD": "AFRICA",
	"SH": "AFRICA",
	"SL": "AFRICA",
	"SN": "AFRICA",
	"SO": "AFRICA",
	"SS": "AFRICA",
	"ST": "AFRICA",
	"SZ": "AFRICA",
	"TD": "AFRICA",
	"TG": "AFRICA",
	"TN": "AFRICA",
	"TZ": "AFRICA",
	"UG": "AFRICA",
	"YT": "AFRICA",
	"ZA": "AFRICA",
	"ZM": "AFRICA",
	"ZW": "AFRICA",
	// Antarctica
	"AQ": "ANTARCTICA",
	"BV": "ANTARCTICA",
	"GS": "ANTARCTICA",
	"HM": "ANTARCTICA",
	"TF": "ANTARCTICA",
	// Asia
	"AE": "ASIA",
	"AF": "ASIA",
	"AM": "ASIA",
	"AZ": "ASIA",
	"BD": "ASIA",
	"BH": "ASIA",
	"BN": "ASIA",
	"BT": "ASIA",
	"CC": "ASIA",
	"CN": "ASIA",
	"CX": "ASIA",
	"CY": "ASIA",
	"GE": "ASIA",
	"HK": "ASIA",
	"ID": "ASIA",
	"IL": "ASIA",
	"IN": "ASIA",
	"IO": "ASIA",
	"IQ": "ASIA",
	"IR": "ASIA",
	"JO": "ASIA",
	"JP": "ASIA",
	"KG": "ASIA",
	"KH": "ASIA",
	"KP": "ASIA",
	"KR": "ASIA",
	"KW": "ASIA",
	"KZ": "ASIA",
	"LA": "ASIA",
	"LB": "ASIA",
	"LK": "ASIA",
	"MM": "ASIA",
	"MN": "ASIA",
	"MO": "ASIA",
	"MV": "ASIA",
	"MY": "ASIA",
	"NP": "ASIA",
	"OM": "ASIA",
	"PH": "ASIA",
	"PK": "ASIA",
	"PS": "ASIA",
	"QA": "ASIA",
	"SA": "ASIA",
	"SG": "ASIA",
	"SY": "ASIA",
	"TH": "ASIA",
	"TJ": "ASIA",
	"TL": "ASIA",
	"TM": "ASIA",
	"TR": "ASIA",
	"TW": "ASIA",
	"UZ": "ASIA",
	"VN": "ASIA",
	"YE": "ASIA",
	// Europe
	"AD": "EUROPE",
	"AL": "EUROPE",
	"AT": "EUROPE",
	"AX": "EUROPE",
	"BA": "EUROPE",
	"BE": "EUROPE",
	"BG": "EUROPE",
	"BY": "EUROPE",
	"CH": "EUROPE",
	"CZ": "EUROPE",
	"DE": "EUROPE",
	"DK": "EUROPE",
	"EE": "EUROPE",
	"ES": "EUROPE",
	"FI": "EUROPE",
	"FO": "EUROPE",
	"FR": "EUROPE",
	"GB": "EUROPE",
	"GG": "EUROPE",
	"GI": "EUROPE",
	"GL": "EUROPE",
	"GR": "EUROPE",
	"HR": "EUROPE",
	"HU": "EUROPE",
	"IE": "EUROPE",
	"IM": "EUROPE",
	"IS": "EUROPE",
	"IT": "EUROPE",
	"JE": "EUROPE",
	"LI": "EUROPE",
	"LT": "EUROPE",
	"LU": "EUROPE",
	"LV": "EUROPE",
	"MC": "EUROPE",
	"MD": "EUROPE",
	"ME": "EUROPE",
	"MK": "EUROPE",
	"MT": "EUROPE",
	"NL": "EUROPE",
	"NO": "EUROPE",
	"PL": "EUROPE",
	"PT": "EUROPE",
	"RO": "EUROPE",
	"RS": "EUROPE",
	"RU": "EUROPE",
	"SE": "EUROPE",
	"SI": "EUROPE",
	"SJ": "EUROPE",
	"SK": "EUROPE",
	"SM": "EUROPE",
	"UA": "EUROPE",
	"VA": "EUROPE",
	"XK": "EUROPE",
	// Latin America
	"AG": "LATIN_AMERICA",
	"AI": "LATIN_AMERICA",
	"AR": "LATIN_AMERICA",
	"AW": "LATIN_AMERICA",
	"BB": "LATIN_AMERICA",
	"BL": "LATIN_AMERICA",
	"BO": "LATIN_AMERICA",
	"BQ": "LATIN_AMERICA",
	"BR": "LATIN_AMERICA",
	"BS": "LATIN_AMERICA",
	"BZ": "LATIN_AMERICA",
	"CL": "LATIN_AMERICA",
	"CO": "LATIN_AMERICA",
	"CR": "LATIN_AMERICA",
	"CU": "LATIN_AMERICA",
	"CW": "LATIN_AMERICA",
	"DM": "LATIN_AMERICA",
	"DO": "LATIN_AMERICA",
	"EC": "LATIN_AMERICA",
	"FK": "LATIN_AMERICA",
	"GD": "LATIN_AMERICA",
	"GF": "LATIN_AMERICA",
	"GP": "LATIN_AMERICA",
	"GT": "LATIN_AMERICA",
	"GY": "LATIN_AMERICA",
	"HN": "LATIN_AMERICA",
	"HT": "LATIN_AMERICA",
	"JM": "LATIN_AMERICA",
	"KN": "LATIN_AMERICA",
	"KY": "LATIN_AMERICA",
	"LC": "LATIN_AMERICA",
	"MF": "LATIN_AMERICA",
	"MQ": "LATIN_AMERICA",
	"MS": "LATIN_AMERICA",
	"MX": "LATIN_AMERICA",
	"NI": "LATIN_AMERICA",
	"PA": "LATIN_AMERICA",
	"PE": "LATIN_AMERICA",
	"PR": "LATIN_AMERICA",
	"PY": "LATIN_AMERICA",
	"SR": "LATIN_AMERICA",
	"SV": "LATIN_AMERICA",
	"SX": "LATIN_AMERICA",
	"TC": "LATIN_AMERICA",
	"TT": "LATIN_AMERICA",
	"UY": "LATIN_AMERICA",
	"VC": "LATIN_AMERICA",
	"VE": "LATIN_AMERICA",
	"VG": "LATIN_AMERICA",
	"VI": "LATIN_AMERICA",
	// North America
	"BM": "NORTH_AMERICA",
	"CA": "NORTH_AMERICA",
	"PM": "NORTH_AMERICA",
	"US": "NORTH_AMERICA",
	// Oceania
	"AS": "OCEANIA",
	"AU": "OCEANIA",
	"CK": "OCEANIA",
	"FJ": "OCEANIA",
	"FM": "OCEANIA",
	"GU": "OCEANIA",
	"KI": "OCEANIA",
	"MH": "OCEANIA",
	"MP": "OCEANIA",
	"NC": "OCEANIA",
	"NF": "OCEANIA",
	"NR": "OCEANIA",
	"NU": "OCEANIA",
	"NZ": "OCEANIA",
	"PF": "OCEANIA",
	"PG": "OCEANIA",
	"PN": "OCEANIA",
	"PW": "OCEANIA",
	"SB": "OCEANIA",
	"TK": "OCEANIA",
	"TO": "OCEANIA",
	"TV": "OCEANIA",
	"UM": "OCEANIA",
	"VU": "OCEANIA",
	"WF": "OCEANIA",
	"WS": "OCEANIA",
}
