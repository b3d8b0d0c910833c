/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package variation

var moscowSuburbs = []string{
	"Королёв", "Королев", "Мытищи", "Химки", "Долгопрудный", "Долгопрудная",
	"Лобня", "Балашиха", "Реутов", "Люберцы", "Котельники", "Дзержинский",
	"Видное", "Домодедово", "Одинцово", "Красногорск", "Истра",
	"Солнечногорск", "Клин", "Дмитров", "Сергиев Посад", "Пушкино",
	"Щёлково", "Щелково", "Ногинск", "Электросталь", "Железнодорожный",
	"Подольск", "Чехов", "Серпухов", "Коломна", "Раменское", "Жуковский",
	"Троицк", "Зеленоград", "Внуково", "Шереметьево",
	"Барвиха", "Рублёвка", "Рублевка", "Горки", "Наро-Фоминск",
}

var spbSuburbs = []string{
	"Пушкин", "Павловск", "Петергоф", "Кронштадт", "Колпино",
	"Сестрорецк", "Зеленогорск", "Ломоносов", "Гатчина", "Всеволожск",
	"Мурино", "Кудрово", "Шушары", "Пулково", "Девяткино",
}

type cityEntry struct {
	aliases []string
	suburbs []string
}

// Curated aliases keyed by canonical lowercase city name
var cities = map[string]cityEntry{
	"москва": {
		aliases: []string{"москва", "москве", "москву", "москвы", "московский", "московская", "мск", "moscow", "msk"},
		suburbs: moscowSuburbs,
	},
	"санкт-петербург": {
		aliases: []string{"санкт-петербург", "санкт петербург", "петербург", "питер", "спб", "петербурге", "питере", "ленинград", "saint petersburg", "spb"},
		suburbs: spbSuburbs,
	},
	"екатеринбург": {
		aliases: []string{"екатеринбург", "екатеринбурге", "екб", "екат", "yekaterinburg", "ekb"},
		suburbs: []string{"Верхняя Пышма", "Берёзовский", "Арамиль", "Среднеуральск"},
	},
	"новосибирск": {
		aliases: []string{"новосибирск", "новосибирске", "новосиб", "нск", "novosibirsk", "nsk"},
		suburbs: []string{"Бердск", "Академгородок", "Кольцово", "Обь"},
	},
	"казань": {
		aliases: []string{"казань", "казани", "kazan", "kzn"},
		suburbs: []string{"Иннополис", "Зеленодольск", "Высокая Гора"},
	},
	"нижний новгород": {
		aliases: []string{"нижний новгород", "нижнем новгороде", "нижний", "ннов", "nizhny novgorod", "nn"},
		suburbs: []string{"Бор", "Кстово", "Дзержинск"},
	},
	"челябинск": {
		aliases: []string{"челябинск", "челябинске", "челяб", "чел", "chelyabinsk", "chel"},
		suburbs: []string{"Копейск", "Миасс", "Златоуст"},
	},
	"самара": {
		aliases: []string{"самара", "самаре", "samara"},
		suburbs: []string{"Тольятти", "Новокуйбышевск", "Чапаевск"},
	},
	"ростов-на-дону": {
		aliases: []string{"ростов-на-дону", "ростов на дону", "ростов", "ростове", "рнд", "rostov"},
		suburbs: []string{"Батайск", "Аксай", "Таганрог", "Азов"},
	},
	"уфа": {
		aliases: []string{"уфа", "уфе", "ufa"},
		suburbs: []string{"Дёма", "Затон", "Шакша"},
	},
	"красноярск": {
		aliases: []string{"красноярск", "красноярске", "крск", "krasnoyarsk", "krsk"},
		suburbs: []string{"Дивногорск", "Сосновоборск", "Железногорск"},
	},
	"воронеж": {
		aliases: []string{"воронеж", "воронеже", "врн", "voronezh", "vrn"},
		suburbs: []string{"Нововоронеж", "Семилуки", "Рамонь"},
	},
	"пермь": {
		aliases: []string{"пермь", "перми", "perm"},
		suburbs: []string{"Краснокамск", "Добрянка"},
	},
	"волгоград": {
		aliases: []string{"волгоград", "волгограде", "влг", "volgograd", "vlg"},
		suburbs: []string{"Волжский", "Краснослободск"},
	},
	"краснодар": {
		aliases: []string{"краснодар", "краснодаре", "крд", "krasnodar", "krd"},
		suburbs: []string{"Анапа", "Геленджик", "Новороссийск", "Сочи", "Адлер"},
	},
	"сочи": {
		aliases: []string{"сочи", "sochi"},
		suburbs: []string{"Адлер", "Хоста", "Лазаревское", "Красная Поляна", "Дагомыс"},
	},
	"минск": {
		aliases: []string{"минск", "минске", "minsk", "мінск"},
		suburbs: []string{"Заславль", "Логойск", "Смолевичи", "Дзержинск"},
	},
}
