package sandbox

import (
	"sync"

	"github.com/dop251/goja"
)

// datePrelude builds the guest-side DateTime API. Values are frozen and
// carry their literal plus a queue of operations; only the terminal methods
// cross into the host through flush.
const datePrelude = `(function (flush, nowLiteral) {
	"use strict";

	function DateTime(literal, ops) {
		this._literal = literal;
		this._ops = Object.freeze(ops);
		Object.freeze(this);
	}

	function units(values, name) {
		if (values === null || typeof values !== "object") {
			throw new TypeError(name + " expects an object of units");
		}
		var out = {};
		Object.keys(values).forEach(function (key) {
			var v = values[key];
			if (typeof v !== "number" || !isFinite(v)) {
				throw new TypeError(name + ": " + key + " must be a finite number");
			}
			out[key] = v;
		});
		return Object.freeze(out);
	}

	function chain(dt, op) {
		return new DateTime(dt._literal, dt._ops.concat([Object.freeze(op)]));
	}

	DateTime.prototype.startOf = function (unit) {
		return chain(this, { op: "startOf", unit: String(unit) });
	};
	DateTime.prototype.endOf = function (unit) {
		return chain(this, { op: "endOf", unit: String(unit) });
	};
	DateTime.prototype.plus = function (duration) {
		return chain(this, { op: "plus", values: units(duration, "plus") });
	};
	DateTime.prototype.minus = function (duration) {
		return chain(this, { op: "minus", values: units(duration, "minus") });
	};
	DateTime.prototype.set = function (fields) {
		return chain(this, { op: "set", values: units(fields, "set") });
	};
	DateTime.prototype.toISODateTimeString = function () {
		return flush(this._literal, JSON.stringify(this._ops), "datetime");
	};
	DateTime.prototype.toCalendarDateString = function () {
		return flush(this._literal, JSON.stringify(this._ops), "date");
	};
	DateTime.prototype.toJSON = function () {
		return this.toISODateTimeString();
	};
	DateTime.prototype.toString = DateTime.prototype.toJSON;

	return Object.freeze({
		fromISO: function (literal) {
			if (typeof literal !== "string") {
				throw new TypeError("DateTime.fromISO expects an ISO string");
			}
			return new DateTime(literal, []);
		},
		now: function () {
			return new DateTime(nowLiteral, []);
		},
		isDateTime: function (value) {
			return value instanceof DateTime;
		}
	});
})`

var (
	preludeOnce    sync.Once
	preludeProgram *goja.Program
	preludeErr     error
)

func loadPrelude() (*goja.Program, error) {
	preludeOnce.Do(func() {
		preludeProgram, preludeErr = goja.Compile("datetime.js", datePrelude, true)
	})
	return preludeProgram, preludeErr
}
